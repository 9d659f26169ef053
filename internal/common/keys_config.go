package common

// KeysDirConfig contains configuration for key/value file loading.
type KeysDirConfig struct {
	// Dir is the directory containing the variables.toml file
	// The TOML file has [key-name] entries with 'value' and optional 'description' fields
	// Default: ./
	Dir string `toml:"dir"`
}

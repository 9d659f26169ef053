package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/responsum/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Variables   KeysDirConfig   `toml:"variables"` // Variables directory configuration (./variables.toml) for key/value pairs
	Query       QueryConfig     `toml:"query"`
	Retrieval   RetrievalConfig `toml:"retrieval"`
	Ingest      IngestConfig    `toml:"ingest"`
	Mailbox     MailboxConfig   `toml:"mailbox"`
	GitHub      GitHubConfig    `toml:"github"`
	Fetch       FetchConfig     `toml:"fetch"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Local       LocalConfig     `toml:"local"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// QueryConfig contains tuning for the question answering pipeline
type QueryConfig struct {
	MaxInputLength     int     `toml:"max_input_length"`     // Character budget for assembled prompts (default: 400)
	MaxNewTokens       int     `toml:"max_new_tokens"`       // Token cap for generated completions (default: 150)
	Temperature        float32 `toml:"temperature"`          // Sampling temperature for generation (default: 0.7)
	DefaultResultCount int     `toml:"default_result_count"` // Chunks retrieved per query when the request omits a count (default: 3)
	DefaultBackend     string  `toml:"default_backend"`      // Backend used when the request omits one (default: "hosted")
	Timeout            string  `toml:"timeout"`              // Per-query timeout as duration string (default: "2m")
}

// RetrievalConfig contains configuration for vector search behavior
type RetrievalConfig struct {
	MinScore       float64 `toml:"min_score"`        // Minimum cosine similarity for a chunk to be returned (default: 0 = no floor)
	MaxResultCount int     `toml:"max_result_count"` // Upper bound on per-query chunk count (default: 20)
}

// IngestConfig contains configuration for the document ingest pipeline
type IngestConfig struct {
	InputDir     string `toml:"input_dir"`     // Directory scanned for new documents (default: "./ingest")
	ProcessedDir string `toml:"processed_dir"` // Where ingested files are moved after indexing (default: "./ingest/processed")
	ChunkSize    int    `toml:"chunk_size"`    // Target characters per chunk (default: 1000)
	ChunkOverlap int    `toml:"chunk_overlap"` // Characters carried over between adjacent chunks (default: 100)
	MaxFileSize  int    `toml:"max_file_size"` // Maximum file size in bytes (default: 10MB)
}

// MailboxConfig contains IMAP mailbox ingest configuration
type MailboxConfig struct {
	Enabled       bool   `toml:"enabled"`        // Poll a mailbox for documents (default: false)
	Host          string `toml:"host"`           // IMAP server hostname
	Port          int    `toml:"port"`           // IMAP server port (default: 993)
	Username      string `toml:"username"`       // IMAP account username
	Password      string `toml:"password"`       // IMAP account password ({key-name} references supported)
	UseTLS        bool   `toml:"use_tls"`        // Use TLS connection (default: true)
	SubjectFilter string `toml:"subject_filter"` // Only ingest emails whose subject contains this text
	Schedule      string `toml:"schedule"`       // Cron schedule for mailbox polling (default: "*/15 * * * *")
}

// GitHubConfig contains GitHub repository ingest configuration
type GitHubConfig struct {
	Token  string `toml:"token"`  // GitHub API token ({key-name} references supported)
	Owner  string `toml:"owner"`  // Repository owner
	Repo   string `toml:"repo"`   // Repository name
	Path   string `toml:"path"`   // Directory within the repo to ingest (default: "docs")
	Branch string `toml:"branch"` // Branch to read from (default: "main")
}

// FetchConfig contains configuration for URL ingestion
type FetchConfig struct {
	UserAgent          string        `toml:"user_agent"`           // User agent for plain HTTP fetches
	RequestTimeout     time.Duration `toml:"request_timeout"`      // HTTP request timeout
	MaxBodySize        int           `toml:"max_body_size"`        // Maximum response body size in bytes
	EnableJavaScript   bool          `toml:"enable_javascript"`    // Render pages with headless Chrome before extraction
	JavaScriptWaitTime time.Duration `toml:"javascript_wait_time"` // Time to wait for JavaScript to render (default: 3s)
}

// GeminiConfig contains Google Gemini API configuration for hosted generation
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for generation (default: "gemini-3-flash-preview")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum spacing between API calls (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration for hosted generation
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for generation (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum spacing between API calls (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for hosted providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // Provider behind the "hosted" backend: "gemini" or "claude" (default: "gemini")
}

// LocalConfig contains configuration for llama-server backed local backends
type LocalConfig struct {
	LlamaDir    string               `toml:"llama_dir"`    // Directory containing llama binaries (empty = search standard locations)
	ModelDir    string               `toml:"model_dir"`    // Directory containing GGUF model files (default: "./models")
	EmbedModel  string               `toml:"embed_model"`  // Embedding model file under model_dir
	EmbedPort   int                  `toml:"embed_port"`   // Port for the embedding server (default: 8086)
	EmbedDim    int                  `toml:"embed_dim"`    // Embedding vector dimension (default: 768)
	ContextSize int                  `toml:"context_size"` // Model context window (default: 2048)
	ThreadCount int                  `toml:"thread_count"` // CPU threads per server (default: 4)
	GPULayers   int                  `toml:"gpu_layers"`   // Layers offloaded to GPU (default: 0)
	Backends    []LocalBackendConfig `toml:"backends"`     // Chat backends addressable as "local-<name>"
}

// LocalBackendConfig describes one local chat backend
type LocalBackendConfig struct {
	ID        string `toml:"id"`         // Backend identifier including the "local-" prefix, e.g. "local-gpt2"
	ChatModel string `toml:"chat_model"` // GGUF model file under model_dir
	Port      int    `toml:"port"`       // Port the llama-server for this backend listens on
}

// WebSocketConfig contains configuration for WebSocket log streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"ingest_progress": "1s"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// SchedulerConfig contains configuration for background maintenance jobs
type SchedulerConfig struct {
	Enabled        bool   `toml:"enabled"`         // Run the maintenance scheduler (default: true)
	GCSchedule     string `toml:"gc_schedule"`     // Badger value-log GC cron schedule (default: "*/30 * * * *")
	IngestSchedule string `toml:"ingest_schedule"` // Input directory scan cron schedule (default: "*/10 * * * *")
	EmbedSchedule  string `toml:"embed_schedule"`  // Embedding backfill cron schedule (default: "*/15 * * * *")
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in responsum.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",                     // Info level for production (debug|info|warn|error)
			Format: "text",                     // Human-readable text format (text|json)
			Output: []string{"stdout", "file"}, // Log to both console and file
		},
		Variables: KeysDirConfig{
			Dir: "./", // Default directory for the variables.toml file
		},
		Query: QueryConfig{
			MaxInputLength:     400,      // Prompt budget sized for small local models
			MaxNewTokens:       150,      // Completion cap
			Temperature:        0.7,      // Default sampling temperature
			DefaultResultCount: 3,        // Three chunks per query unless the caller asks otherwise
			DefaultBackend:     "hosted", // Hosted generation when the request omits a backend
			Timeout:            "2m",     // Per-query timeout
		},
		Retrieval: RetrievalConfig{
			MinScore:       0,  // No similarity floor
			MaxResultCount: 20, // Cap per-query chunk count to bound prompt assembly
		},
		Ingest: IngestConfig{
			InputDir:     "./ingest",
			ProcessedDir: "./ingest/processed",
			ChunkSize:    1000,
			ChunkOverlap: 100,
			MaxFileSize:  10 * 1024 * 1024, // 10MB
		},
		Mailbox: MailboxConfig{
			Enabled:  false, // Disabled by default - user must configure credentials
			Port:     993,
			UseTLS:   true,
			Schedule: "*/15 * * * *", // Poll every 15 minutes
		},
		GitHub: GitHubConfig{
			Path:   "docs",
			Branch: "main",
		},
		Fetch: FetchConfig{
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:     30 * time.Second,
			MaxBodySize:        10 * 1024 * 1024, // 10MB
			EnableJavaScript:   false,            // Plain HTTP fetch by default, Chrome rendering is opt-in
			JavaScriptWaitTime: 3 * time.Second,
		},
		Gemini: GeminiConfig{
			APIKey:      "",                       // User must provide API key (no fallback)
			Model:       "gemini-3-flash-preview", // Model for generation
			Timeout:     "2m",
			RateLimit:   "4s", // Default to 4s (15 RPM) for free tier
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			APIKey:      "",                          // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022", // Model for generation
			MaxTokens:   8192,
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini, // Default hosted provider
		},
		Local: LocalConfig{
			ModelDir:    "./models",
			EmbedModel:  "nomic-embed-text-v1.5.Q8_0.gguf",
			EmbedPort:   8086,
			EmbedDim:    768,
			ContextSize: 2048,
			ThreadCount: 4,
			GPULayers:   0,
			Backends: []LocalBackendConfig{
				{ID: "local-gpt2", ChatModel: "gpt2.Q8_0.gguf", Port: 8087},
				{ID: "local-distilgpt2", ChatModel: "distilgpt2.Q8_0.gguf", Port: 8088},
			},
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info", // Default: info level and above
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
				"Publishing Event",
			},
			// Empty AllowedEvents allows all events
			AllowedEvents: []string{},
			// Throttle high-frequency events to prevent WebSocket flooding during large ingests
			ThrottleIntervals: map[string]string{
				"ingest_progress": "1s", // Max 1 ingest progress update per second
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			GCSchedule:     "*/30 * * * *", // Badger value-log GC every 30 minutes
			IngestSchedule: "*/10 * * * *", // Scan the input directory every 10 minutes
			EmbedSchedule:  "*/15 * * * *", // Backfill chunk embeddings every 15 minutes
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
// kvStorage can be nil (replacement will be skipped)
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
// kvStorage can be nil (replacement will be skipped)
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Perform {key-name} replacement if KV storage is available
	if kvStorage != nil {
		ctx := context.Background()
		kvMap, err := kvStorage.GetAll(ctx)
		if err != nil {
			// Log warning and skip replacement (graceful degradation)
			logger := arbor.NewLogger()
			logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else {
			logger := arbor.NewLogger()
			if err := ReplaceInStruct(config, kvMap, logger); err != nil {
				logger.Warn().Err(err).Msg("Failed to replace key references in config")
			} else {
				logger.Info().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
			}
		}
	}

	// Apply environment variables (overrides all file configs and replacements)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: RESPONSUM_ENV, fallback: GO_ENV)
	if env := os.Getenv("RESPONSUM_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("RESPONSUM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RESPONSUM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("RESPONSUM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("RESPONSUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("RESPONSUM_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("RESPONSUM_LOG_OUTPUT"); output != "" {
		// Split comma-separated output types
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Query configuration
	if maxInput := os.Getenv("RESPONSUM_QUERY_MAX_INPUT_LENGTH"); maxInput != "" {
		if mi, err := strconv.Atoi(maxInput); err == nil && mi > 0 {
			config.Query.MaxInputLength = mi
		}
	}
	if maxTokens := os.Getenv("RESPONSUM_QUERY_MAX_NEW_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil && mt > 0 {
			config.Query.MaxNewTokens = mt
		}
	}
	if temperature := os.Getenv("RESPONSUM_QUERY_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Query.Temperature = float32(t)
		}
	}
	if resultCount := os.Getenv("RESPONSUM_QUERY_DEFAULT_RESULT_COUNT"); resultCount != "" {
		if rc, err := strconv.Atoi(resultCount); err == nil && rc > 0 {
			config.Query.DefaultResultCount = rc
		}
	}
	if backend := os.Getenv("RESPONSUM_QUERY_DEFAULT_BACKEND"); backend != "" {
		config.Query.DefaultBackend = backend
	}
	if timeout := os.Getenv("RESPONSUM_QUERY_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Query.Timeout = timeout
		}
	}

	// Retrieval configuration
	if minScore := os.Getenv("RESPONSUM_RETRIEVAL_MIN_SCORE"); minScore != "" {
		if ms, err := strconv.ParseFloat(minScore, 64); err == nil {
			config.Retrieval.MinScore = ms
		}
	}
	if maxResults := os.Getenv("RESPONSUM_RETRIEVAL_MAX_RESULT_COUNT"); maxResults != "" {
		if mr, err := strconv.Atoi(maxResults); err == nil && mr > 0 {
			config.Retrieval.MaxResultCount = mr
		}
	}

	// Ingest configuration
	if inputDir := os.Getenv("RESPONSUM_INGEST_INPUT_DIR"); inputDir != "" {
		config.Ingest.InputDir = inputDir
	}
	if processedDir := os.Getenv("RESPONSUM_INGEST_PROCESSED_DIR"); processedDir != "" {
		config.Ingest.ProcessedDir = processedDir
	}
	if chunkSize := os.Getenv("RESPONSUM_INGEST_CHUNK_SIZE"); chunkSize != "" {
		if cs, err := strconv.Atoi(chunkSize); err == nil && cs > 0 {
			config.Ingest.ChunkSize = cs
		}
	}
	if chunkOverlap := os.Getenv("RESPONSUM_INGEST_CHUNK_OVERLAP"); chunkOverlap != "" {
		if co, err := strconv.Atoi(chunkOverlap); err == nil && co >= 0 {
			config.Ingest.ChunkOverlap = co
		}
	}

	// Mailbox configuration
	if enabled := os.Getenv("RESPONSUM_MAILBOX_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Mailbox.Enabled = e
		}
	}
	if host := os.Getenv("RESPONSUM_MAILBOX_HOST"); host != "" {
		config.Mailbox.Host = host
	}
	if port := os.Getenv("RESPONSUM_MAILBOX_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Mailbox.Port = p
		}
	}
	if username := os.Getenv("RESPONSUM_MAILBOX_USERNAME"); username != "" {
		config.Mailbox.Username = username
	}
	if password := os.Getenv("RESPONSUM_MAILBOX_PASSWORD"); password != "" {
		config.Mailbox.Password = password
	}

	// GitHub configuration
	if token := os.Getenv("RESPONSUM_GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}
	if owner := os.Getenv("RESPONSUM_GITHUB_OWNER"); owner != "" {
		config.GitHub.Owner = owner
	}
	if repo := os.Getenv("RESPONSUM_GITHUB_REPO"); repo != "" {
		config.GitHub.Repo = repo
	}

	// Fetch configuration
	if userAgent := os.Getenv("RESPONSUM_FETCH_USER_AGENT"); userAgent != "" {
		config.Fetch.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("RESPONSUM_FETCH_REQUEST_TIMEOUT"); requestTimeout != "" {
		if rt, err := time.ParseDuration(requestTimeout); err == nil {
			config.Fetch.RequestTimeout = rt
		}
	}
	if enableJS := os.Getenv("RESPONSUM_FETCH_ENABLE_JAVASCRIPT"); enableJS != "" {
		if ej, err := strconv.ParseBool(enableJS); err == nil {
			config.Fetch.EnableJavaScript = ej
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("RESPONSUM_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("RESPONSUM_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if timeout := os.Getenv("RESPONSUM_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("RESPONSUM_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("RESPONSUM_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("RESPONSUM_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // RESPONSUM_ prefix takes priority
	}
	if model := os.Getenv("RESPONSUM_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("RESPONSUM_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("RESPONSUM_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("RESPONSUM_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}
	if temperature := os.Getenv("RESPONSUM_CLAUDE_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Claude.Temperature = float32(t)
		}
	}

	// LLM provider configuration
	if provider := os.Getenv("RESPONSUM_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Local backend configuration
	if llamaDir := os.Getenv("RESPONSUM_LOCAL_LLAMA_DIR"); llamaDir != "" {
		config.Local.LlamaDir = llamaDir
	}
	if modelDir := os.Getenv("RESPONSUM_LOCAL_MODEL_DIR"); modelDir != "" {
		config.Local.ModelDir = modelDir
	}
	if embedModel := os.Getenv("RESPONSUM_LOCAL_EMBED_MODEL"); embedModel != "" {
		config.Local.EmbedModel = embedModel
	}
	if threadCount := os.Getenv("RESPONSUM_LOCAL_THREAD_COUNT"); threadCount != "" {
		if tc, err := strconv.Atoi(threadCount); err == nil && tc > 0 {
			config.Local.ThreadCount = tc
		}
	}
	if gpuLayers := os.Getenv("RESPONSUM_LOCAL_GPU_LAYERS"); gpuLayers != "" {
		if gl, err := strconv.Atoi(gpuLayers); err == nil && gl >= 0 {
			config.Local.GPULayers = gl
		}
	}

	// WebSocket configuration
	if minLevel := os.Getenv("RESPONSUM_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if excludePatterns := os.Getenv("RESPONSUM_WEBSOCKET_EXCLUDE_PATTERNS"); excludePatterns != "" {
		// Split comma-separated patterns
		patterns := []string{}
		for _, p := range splitString(excludePatterns, ",") {
			trimmed := trimSpace(p)
			if trimmed != "" {
				patterns = append(patterns, trimmed)
			}
		}
		if len(patterns) > 0 {
			config.WebSocket.ExcludePatterns = patterns
		}
	}
	if allowedEvents := os.Getenv("RESPONSUM_WEBSOCKET_ALLOWED_EVENTS"); allowedEvents != "" {
		// Split comma-separated event types
		events := []string{}
		for _, e := range splitString(allowedEvents, ",") {
			trimmed := trimSpace(e)
			if trimmed != "" {
				events = append(events, trimmed)
			}
		}
		if len(events) > 0 {
			config.WebSocket.AllowedEvents = events
		}
	}
	if ingestThrottle := os.Getenv("RESPONSUM_WEBSOCKET_THROTTLE_INGEST_PROGRESS"); ingestThrottle != "" {
		// Parse duration string (e.g., "2s", "1500ms")
		if _, err := time.ParseDuration(ingestThrottle); err == nil {
			if config.WebSocket.ThrottleIntervals == nil {
				config.WebSocket.ThrottleIntervals = make(map[string]string)
			}
			config.WebSocket.ThrottleIntervals["ingest_progress"] = ingestThrottle
		}
	}

	// Scheduler configuration
	if enabled := os.Getenv("RESPONSUM_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if gcSchedule := os.Getenv("RESPONSUM_SCHEDULER_GC_SCHEDULE"); gcSchedule != "" {
		config.Scheduler.GCSchedule = gcSchedule
	}
	if ingestSchedule := os.Getenv("RESPONSUM_SCHEDULER_INGEST_SCHEDULE"); ingestSchedule != "" {
		config.Scheduler.IngestSchedule = ingestSchedule
	}
	if embedSchedule := os.Getenv("RESPONSUM_SCHEDULER_EMBED_SCHEDULE"); embedSchedule != "" {
		config.Scheduler.EmbedSchedule = embedSchedule
	}

	// Variables configuration
	if variablesDir := os.Getenv("RESPONSUM_VARIABLES_DIR"); variablesDir != "" {
		config.Variables.Dir = variablesDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → KV store → config fallback → error
// This ensures RESPONSUM_* environment variables always take precedence
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	// Map of KV store key names to environment variable names
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"RESPONSUM_GEMINI_API_KEY"},
		"anthropic_api_key": {"RESPONSUM_CLAUDE_API_KEY"},
		"claude_api_key":    {"RESPONSUM_CLAUDE_API_KEY"},
		"github_token":      {"RESPONSUM_GITHUB_TOKEN"},
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// For Claude, also honor the standard ANTHROPIC_API_KEY env var
	if name == "anthropic_api_key" || name == "claude_api_key" {
		if envValue := os.Getenv("ANTHROPIC_API_KEY"); envValue != "" {
			return envValue, nil
		}
	}

	// Try to resolve from KV store (medium priority - file-based variables)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// ValidateSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// FindLocalBackend returns the local backend entry matching the given identifier
func (c *Config) FindLocalBackend(id string) (*LocalBackendConfig, bool) {
	for i := range c.Local.Backends {
		if c.Local.Backends[i].ID == id {
			return &c.Local.Backends[i], true
		}
	}
	return nil, false
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
)

func TestGitHubSourceConfigured(t *testing.T) {
	configured := NewGitHubSource(&common.GitHubConfig{Owner: "ternarybob", Repo: "responsum"}, arbor.NewLogger())
	assert.True(t, configured.Configured())

	missingRepo := NewGitHubSource(&common.GitHubConfig{Owner: "ternarybob"}, arbor.NewLogger())
	assert.False(t, missingRepo.Configured())

	nilConfig := NewGitHubSource(nil, arbor.NewLogger())
	assert.False(t, nilConfig.Configured())
}

func TestUnderConfiguredPath(t *testing.T) {
	source := NewGitHubSource(&common.GitHubConfig{Owner: "o", Repo: "r", Path: "docs"}, arbor.NewLogger())

	assert.True(t, source.underConfiguredPath("docs/setup.md"))
	assert.True(t, source.underConfiguredPath("docs/guides/redis.md"))
	assert.False(t, source.underConfiguredPath("README.md"))
	assert.False(t, source.underConfiguredPath("documentation/setup.md"))

	wholeRepo := NewGitHubSource(&common.GitHubConfig{Owner: "o", Repo: "r"}, arbor.NewLogger())
	assert.True(t, wholeRepo.underConfiguredPath("README.md"))
}

func TestIsMarkdownPath(t *testing.T) {
	assert.True(t, isMarkdownPath("docs/setup.md"))
	assert.True(t, isMarkdownPath("docs/SETUP.MD"))
	assert.True(t, isMarkdownPath("notes.markdown"))
	assert.False(t, isMarkdownPath("docs/diagram.png"))
	assert.False(t, isMarkdownPath("main.go"))
}

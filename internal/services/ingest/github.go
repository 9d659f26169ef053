package ingest

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"golang.org/x/oauth2"
)

// RepoDocument is a markdown file pulled from the configured GitHub repository
type RepoDocument struct {
	Path    string
	Name    string
	Content string
	URL     string
	SHA     string
}

// GitHubSource reads markdown documentation out of a GitHub repository
type GitHubSource struct {
	config *common.GitHubConfig
	logger arbor.ILogger
	client *github.Client
}

// NewGitHubSource creates a new GitHub repository source. An empty token
// falls back to unauthenticated access, which works for public repos at
// a much lower rate limit.
func NewGitHubSource(config *common.GitHubConfig, logger arbor.ILogger) *GitHubSource {
	var client *github.Client
	if config != nil && config.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})
		tc := oauth2.NewClient(context.Background(), ts)
		client = github.NewClient(tc)
	} else {
		client = github.NewClient(nil)
	}

	return &GitHubSource{
		config: config,
		logger: logger,
		client: client,
	}
}

// Configured reports whether a repository has been set up for syncing
func (g *GitHubSource) Configured() bool {
	return g.config != nil && g.config.Owner != "" && g.config.Repo != ""
}

// FetchMarkdownFiles lists the repository tree and downloads every markdown
// file under the configured path
func (g *GitHubSource) FetchMarkdownFiles(ctx context.Context) ([]RepoDocument, error) {
	branch := g.config.Branch
	if branch == "" {
		branch = "main"
	}

	tree, _, err := g.client.Git.GetTree(ctx, g.config.Owner, g.config.Repo, branch, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository tree: %w", err)
	}

	var paths []string
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		entryPath := entry.GetPath()
		if !isMarkdownPath(entryPath) || !g.underConfiguredPath(entryPath) {
			continue
		}
		paths = append(paths, entryPath)
	}

	g.logger.Info().
		Str("repo", g.config.Owner+"/"+g.config.Repo).
		Str("branch", branch).
		Int("files", len(paths)).
		Msg("Syncing markdown files from GitHub")

	docs := make([]RepoDocument, 0, len(paths))
	for _, filePath := range paths {
		if ctx.Err() != nil {
			return docs, ctx.Err()
		}

		doc, err := g.fetchFile(ctx, branch, filePath)
		if err != nil {
			g.logger.Warn().Err(err).Str("path", filePath).Msg("Failed to fetch file")
			continue
		}
		docs = append(docs, *doc)
	}

	return docs, nil
}

func (g *GitHubSource) fetchFile(ctx context.Context, branch, filePath string) (*RepoDocument, error) {
	content, _, _, err := g.client.Repositories.GetContents(ctx, g.config.Owner, g.config.Repo, filePath,
		&github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return nil, fmt.Errorf("failed to get contents: %w", err)
	}
	if content == nil {
		return nil, fmt.Errorf("path %s is not a file", filePath)
	}

	text, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	return &RepoDocument{
		Path:    filePath,
		Name:    path.Base(filePath),
		Content: text,
		URL:     content.GetHTMLURL(),
		SHA:     content.GetSHA(),
	}, nil
}

func (g *GitHubSource) underConfiguredPath(entryPath string) bool {
	prefix := strings.Trim(g.config.Path, "/")
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(entryPath, prefix+"/")
}

func isMarkdownPath(p string) bool {
	lowered := strings.ToLower(p)
	return strings.HasSuffix(lowered, ".md") || strings.HasSuffix(lowered, ".markdown")
}

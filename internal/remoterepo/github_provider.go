package remoterepo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

const githubAPIBase = "https://api.github.com"

// text content relevant for retrieval; everything else in the tree is skipped
var syncableExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".rst":      true,
	".adoc":     true,
}

type githubProvider struct {
	cfg     ProviderArgs
	client  *http.Client
	baseURL string
}

func init() {
	Register("github", func(args ProviderArgs) (Provider, error) {
		if args.Config.Owner == "" || args.Config.Repo == "" {
			return nil, fmt.Errorf("github owner/repo are required")
		}
		if args.Config.Branch == "" {
			args.Config.Branch = "main"
		}
		client := args.Client
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		return &githubProvider{cfg: args, client: client, baseURL: githubAPIBase}, nil
	})
}

func (g *githubProvider) Name() string {
	return "github"
}

type githubTreeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
		Size int64  `json:"size"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

func (g *githubProvider) ListFiles(ctx context.Context) ([]RemoteFile, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		g.baseURL,
		url.PathEscape(g.cfg.Config.Owner),
		url.PathEscape(g.cfg.Config.Repo),
		url.PathEscape(g.cfg.Config.Branch),
	)
	body, err := g.doGet(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	var tree githubTreeResponse
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("decode tree response: %w", err)
	}
	var files []RemoteFile
	for _, entry := range tree.Tree {
		if entry.Type != "blob" {
			continue
		}
		if !syncableExtensions[strings.ToLower(path.Ext(entry.Path))] {
			continue
		}
		files = append(files, RemoteFile{
			Path:      entry.Path,
			SHA:       entry.SHA,
			SizeBytes: entry.Size,
		})
	}
	return files, nil
}

func (g *githubProvider) FetchContent(ctx context.Context, filePath string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		g.baseURL,
		url.PathEscape(g.cfg.Config.Owner),
		url.PathEscape(g.cfg.Config.Repo),
		escapePath(filePath),
		url.QueryEscape(g.cfg.Config.Branch),
	)
	return g.doGet(ctx, endpoint, "application/vnd.github.raw+json")
}

func (g *githubProvider) doGet(ctx context.Context, endpoint, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.cfg.Config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Config.Token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrProvider, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: github auth failed: %s", appErr.ErrProvider, resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: github resource not found", appErr.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: github rate limited", appErr.ErrProvider)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("%w: github request failed: %s", appErr.ErrProvider, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

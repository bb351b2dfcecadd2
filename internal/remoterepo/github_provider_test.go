package remoterepo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

func newTestGithubProvider(t *testing.T, handler http.Handler) *githubProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &githubProvider{
		cfg: ProviderArgs{
			Config: ProviderConfig{
				Owner:  "acme",
				Repo:   "docs",
				Branch: "main",
				Token:  "tok-123",
			},
		},
		client:  server.Client(),
		baseURL: server.URL,
	}
}

func TestGithubProviderListFiles(t *testing.T) {
	var gotAuth string
	provider := newTestGithubProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/docs/git/trees/main", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("recursive"))
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"tree": [
				{"path": "README.md", "type": "blob", "sha": "aaa", "size": 120},
				{"path": "guide/intro.txt", "type": "blob", "sha": "bbb", "size": 64},
				{"path": "guide", "type": "tree", "sha": "ccc", "size": 0},
				{"path": "main.go", "type": "blob", "sha": "ddd", "size": 300}
			],
			"truncated": false
		}`))
	}))

	files, err := provider.ListFiles(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Len(t, files, 2)
	require.Equal(t, "README.md", files[0].Path)
	require.Equal(t, "aaa", files[0].SHA)
	require.Equal(t, int64(120), files[0].SizeBytes)
	require.Equal(t, "guide/intro.txt", files[1].Path)
}

func TestGithubProviderFetchContent(t *testing.T) {
	provider := newTestGithubProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/docs/contents/guide/intro.md", r.URL.Path)
		require.Equal(t, "main", r.URL.Query().Get("ref"))
		require.Equal(t, "application/vnd.github.raw+json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte("# Intro\n\nhello"))
	}))

	content, err := provider.FetchContent(context.Background(), "guide/intro.md")
	require.NoError(t, err)
	require.Equal(t, "# Intro\n\nhello", string(content))
}

func TestGithubProviderErrorMapping(t *testing.T) {
	status := http.StatusNotFound
	provider := newTestGithubProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	_, err := provider.FetchContent(context.Background(), "missing.md")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	status = http.StatusForbidden
	_, err = provider.ListFiles(context.Background())
	require.ErrorIs(t, err, appErr.ErrProvider)

	status = http.StatusInternalServerError
	_, err = provider.ListFiles(context.Background())
	require.ErrorIs(t, err, appErr.ErrProvider)
}

package remoterepo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// RemoteFile is one entry of an external repository's file listing.
type RemoteFile struct {
	Path      string
	SHA       string
	SizeBytes int64
}

// Provider lists and fetches files from an external hosted repository.
type Provider interface {
	Name() string
	ListFiles(ctx context.Context) ([]RemoteFile, error)
	FetchContent(ctx context.Context, path string) ([]byte, error)
}

type ProviderConfig struct {
	Owner  string
	Repo   string
	Branch string
	Token  string
}

type ProviderArgs struct {
	Config ProviderConfig
	Client *http.Client
}

type ProviderFactory func(args ProviderArgs) (Provider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args ProviderArgs) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("remote provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported remote provider: %s", name)
	}
	return factory(args)
}

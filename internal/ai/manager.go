package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

type ManagerConfig struct {
	Timeout    int
	Dimension  int
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Manager wraps the raw embedder with deadline, dimension validation and
// bounded exponential backoff. Provider failures surface as ErrProvider only
// after the retry budget is spent; a dimension mismatch is never retried.
type Manager struct {
	embedder IEmbedder
	cfg      ManagerConfig
}

func NewManager(embedder IEmbedder, cfg ManagerConfig) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	return &Manager{embedder: embedder, cfg: cfg}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	var lastErr error
	backoff := m.cfg.BaseDelay
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		values, err := m.embedOnce(ctx, text, taskType)
		if err == nil {
			if m.cfg.Dimension > 0 && len(values) != m.cfg.Dimension {
				return nil, fmt.Errorf("%w: embedding dimension %d, expected %d",
					appErr.ErrInvalid, len(values), m.cfg.Dimension)
			}
			return values, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < m.cfg.MaxRetries-1 {
			logutil.GetLogger(ctx).Warn("embed attempt failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", appErr.ErrProvider, ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
				if backoff > m.cfg.MaxDelay {
					backoff = m.cfg.MaxDelay
				}
			}
		}
	}
	if errors.Is(lastErr, ErrUnavailable) {
		return nil, fmt.Errorf("%w: %v", appErr.ErrProvider, lastErr)
	}
	return nil, fmt.Errorf("%w: embed failed after %d attempts: %v", appErr.ErrProvider, m.cfg.MaxRetries, lastErr)
}

func (m *Manager) embedOnce(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) ModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

func (m *Manager) Dimension() int {
	return m.cfg.Dimension
}

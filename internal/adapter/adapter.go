// Package adapter executes individual pipeline stages. The implementation
// is chosen once at startup from configuration; an optional fallback makes
// remote failures invisible to the orchestrator.
package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SirClappington/resq/internal/config"
	"github.com/SirClappington/resq/internal/domain"
)

// StageRunner produces a result for one stage invocation. Implementations
// must be safe for concurrent use.
type StageRunner interface {
	RunStage(ctx context.Context, stage string, payload map[string]any, seed int64) (domain.StageResult, error)
}

// New resolves the configured runner. Unknown adapter names are a startup
// error, not a runtime fallback.
func New(cfg config.Config, log *zap.Logger) (StageRunner, error) {
	var primary StageRunner
	switch cfg.StageAdapter {
	case "local":
		primary = NewLocal()
	case "http":
		primary = NewHTTP(HTTPOptions{
			URL:         cfg.AdapterHTTPURL,
			Timeout:     cfg.AdapterTimeout(),
			MaxRetries:  cfg.AdapterMaxRetries,
			Backoff:     cfg.AdapterBackoff(),
			BackoffMult: cfg.AdapterBackoffMult,
		})
	default:
		return nil, fmt.Errorf("unknown stage adapter %q", cfg.StageAdapter)
	}
	if cfg.AdapterAllowFallback && cfg.StageAdapter != "local" {
		return &Facade{primary: primary, fallback: NewLocal(), log: log}, nil
	}
	return primary, nil
}

// Facade retries a failed call against the deterministic local adapter so
// the orchestrator only ever sees success or a terminal stage error.
type Facade struct {
	primary  StageRunner
	fallback StageRunner
	log      *zap.Logger
}

func NewFacade(primary, fallback StageRunner, log *zap.Logger) *Facade {
	return &Facade{primary: primary, fallback: fallback, log: log}
}

func (f *Facade) RunStage(ctx context.Context, stage string, payload map[string]any, seed int64) (domain.StageResult, error) {
	res, err := f.primary.RunStage(ctx, stage, payload, seed)
	if err == nil {
		return res, nil
	}
	if f.fallback == nil {
		return nil, err
	}
	f.log.Warn("stage adapter failed, falling back to local adapter",
		zap.String("stage", stage),
		zap.Error(err),
	)
	return f.fallback.RunStage(ctx, stage, payload, seed)
}

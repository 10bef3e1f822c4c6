package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/pkg/circuitbreaker"
)

// Manager manages AI providers with fallback logic. Every call runs inside a
// circuit breaker so a dead upstream fails fast instead of stacking timeouts
// across live calls.
type Manager struct {
	providers []Provider
	breaker   *circuitbreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewManager creates a new AI provider manager
func NewManager(providers []Provider, logger *zap.Logger) *Manager {
	return &Manager{
		providers: providers,
		breaker:   circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:    logger,
	}
}

// ExecuteWithFallback executes a method on providers with fallback logic
func (m *Manager) ExecuteWithFallback(
	ctx context.Context,
	method func(Provider, context.Context) (interface{}, error),
) (interface{}, error) {
	if len(m.providers) == 0 {
		return nil, fmt.Errorf("no AI providers available")
	}

	var result interface{}
	err := m.breaker.Execute(ctx, func() error {
		var lastErr error
		for _, provider := range m.providers {
			if !provider.IsAvailable() {
				continue
			}

			res, err := method(provider, ctx)
			if err == nil {
				result = res
				return nil
			}

			lastErr = err
			m.logger.Warn("AI provider failed, trying next",
				zap.String("provider", provider.Name()),
				zap.Error(err),
			)
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no AI providers available")
		}
		return fmt.Errorf("all AI providers failed: %w", lastErr)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Respond generates a conversational turn with fallback
func (m *Manager) Respond(ctx context.Context, req *RespondRequest) (*RespondResponse, error) {
	result, err := m.ExecuteWithFallback(ctx, func(provider Provider, ctx context.Context) (interface{}, error) {
		return provider.Respond(ctx, req)
	})

	if err != nil {
		return nil, err
	}

	return result.(*RespondResponse), nil
}

// SummarizeCall summarizes a call with fallback
func (m *Manager) SummarizeCall(ctx context.Context, req *SummarizeRequest) (*SummarizeResponse, error) {
	result, err := m.ExecuteWithFallback(ctx, func(provider Provider, ctx context.Context) (interface{}, error) {
		return provider.SummarizeCall(ctx, req)
	})

	if err != nil {
		return nil, err
	}

	return result.(*SummarizeResponse), nil
}

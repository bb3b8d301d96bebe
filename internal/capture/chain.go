package capture

import (
	"errors"
	"fmt"
	"log/slog"
)

// Chain tries providers in order until one constructs a node. A provider
// that reports ErrUnsupported is skipped with a warning; any other failure
// aborts construction immediately. Chain itself implements Provider, so a
// chain can be handed anywhere a single provider is expected.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a provider chain with the given fallback order.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger,
	}
}

// Name returns the provider name.
func (c *Chain) Name() string { return "chain" }

// Construct walks the chain and returns the first node successfully built.
func (c *Chain) Construct(cfg Config) (Node, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("%w: no capture providers configured", ErrUnsupported)
	}

	for _, provider := range c.providers {
		node, err := provider.Construct(cfg)
		if err == nil {
			c.logger.Info("Capture node constructed",
				slog.String("provider", provider.Name()),
				slog.Int("sample_rate", node.SampleRate()),
				slog.Int("channels", cfg.Channels),
			)
			return node, nil
		}

		if errors.Is(err, ErrUnsupported) {
			c.logger.Warn("Capture provider unavailable, trying next",
				slog.String("provider", provider.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}

		return nil, fmt.Errorf("capture provider %s: %w", provider.Name(), err)
	}

	return nil, fmt.Errorf("%w: all capture providers exhausted", ErrUnsupported)
}

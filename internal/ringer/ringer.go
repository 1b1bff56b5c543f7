// Package ringer produces the audible side of an owner's ring session.
// Strategies are tried in order and the first that starts wins; when all of
// them fail the session keeps running silently.
package ringer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Raimguhinov/ring-go/pkg/logger"
)

// Strategy is one way to make noise. Start must be cheap to fail.
type Strategy interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}

// Chain tries its strategies in sequence. Implements session.Ringer.
type Chain struct {
	strategies []Strategy
	logger     *logger.Logger

	mu     sync.Mutex
	active Strategy
}

func NewChain(l *logger.Logger, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		logger:     l,
	}
}

// Start runs the first strategy that succeeds. The error return only means
// every layer failed; the caller continues silent either way.
func (c *Chain) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil
	}

	for _, s := range c.strategies {
		if err := s.Start(ctx); err != nil {
			c.logger.Warn("ringer strategy failed",
				slog.String("strategy", s.Name()),
				logger.Err(err),
			)
			continue
		}
		c.logger.Debug("ringer started", slog.String("strategy", s.Name()))
		c.active = s
		return nil
	}
	return fmt.Errorf("ringer - Start: all strategies failed")
}

// Stop halts whatever is playing. Safe to call repeatedly and without a
// preceding successful Start.
func (c *Chain) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.Stop()
		c.active = nil
	}
}

package service

import (
	"time"

	"casecounsel-backend/metrics"

	"go.uber.org/zap"
)

// common holds the ambient dependencies shared by the pipeline stages
type common struct {
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

func newCommon(opts []Option) common {
	c := common{
		logger: zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option configures logging, metrics and the clock of a pipeline stage
type Option func(*common)

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *common) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *common) {
		c.metrics = m
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *common) {
		if now != nil {
			c.now = now
		}
	}
}

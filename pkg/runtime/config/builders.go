package config

import (
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/breaker"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/event"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/retry"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/state"
)

// RetryConfig builds a retry config from the wire-form keys:
// maxRetries, maxTotalMs, initialDelayMs, backoffFactor, maxDelayMs,
// jitter, retryableErrorCodes, retryableStatusCodes.
func (c Config) RetryConfig() retry.Config {
	base := retry.DefaultConfig
	return retry.Config{
		MaxRetries:           c.Int("maxRetries", base.MaxRetries),
		MaxElapsed:           c.Duration("maxTotalMs", base.MaxElapsed),
		InitialDelay:         c.Duration("initialDelayMs", base.InitialDelay),
		BackoffFactor:        c.Float("backoffFactor", base.BackoffFactor),
		MaxDelay:             c.Duration("maxDelayMs", base.MaxDelay),
		Jitter:               c.Bool("jitter", base.Jitter),
		RetryableCodes:       c.StringSlice("retryableErrorCodes", base.RetryableCodes),
		RetryableStatusCodes: c.IntSlice("retryableStatusCodes", base.RetryableStatusCodes),
	}
}

// BreakerConfig builds a circuit breaker config from the wire-form keys:
// name, failureThreshold, recoveryTimeout, successThreshold, operationTimeout.
func (c Config) BreakerConfig() breaker.Config {
	base := breaker.DefaultConfig
	return breaker.Config{
		Name:             c.String("name", base.Name),
		FailureThreshold: c.Int("failureThreshold", base.FailureThreshold),
		RecoveryTimeout:  c.Duration("recoveryTimeout", base.RecoveryTimeout),
		SuccessThreshold: c.Int("successThreshold", base.SuccessThreshold),
		OperationTimeout: c.Duration("operationTimeout", base.OperationTimeout),
	}
}

// StateConfig builds a state store config from the wire-form keys:
// maxNamespaces, maxKeysPerNamespace, gcInterval.
func (c Config) StateConfig() state.Config {
	base := state.DefaultConfig
	return state.Config{
		MaxNamespaces:       c.Int("maxNamespaces", base.MaxNamespaces),
		MaxKeysPerNamespace: c.Int("maxKeysPerNamespace", base.MaxKeysPerNamespace),
		GCInterval:          c.Duration("gcInterval", base.GCInterval),
	}
}

// ProcessorConfig builds an event processor config from the wire-form keys:
// maxEventDepth, maxEventChainLength, batchSize, cleanupInterval,
// staleThreshold, operationTimeoutMs, enableObservability, historySize.
// Middleware, logger, and observability sinks are wired by the caller.
func (c Config) ProcessorConfig() event.Config {
	base := event.DefaultConfig
	return event.Config{
		MaxDepth:            c.Int("maxEventDepth", base.MaxDepth),
		MaxChainLength:      c.Int("maxEventChainLength", base.MaxChainLength),
		BatchSize:           c.Int("batchSize", base.BatchSize),
		CleanupInterval:     c.Duration("cleanupInterval", base.CleanupInterval),
		StaleThreshold:      c.Duration("staleThreshold", base.StaleThreshold),
		HandlerTimeout:      c.Duration("operationTimeoutMs", base.HandlerTimeout),
		HistorySize:         c.Int("historySize", base.HistorySize),
		EnableObservability: c.Bool("enableObservability", false),
	}
}

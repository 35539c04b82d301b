package resilience

import (
	"time"

	"github.com/sells-group/philgeps-cli/internal/config"
)

// FromConfig builds the navigation retry policy and the portal circuit
// breaker settings from application config.
func FromConfig(rc config.ResilienceConfig, maxRetries int) (RetryConfig, CircuitBreakerConfig) {
	retry := DefaultRetryConfig()
	if maxRetries > 0 {
		retry.MaxAttempts = maxRetries
	}
	if rc.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}

	cb := DefaultCircuitBreakerConfig()
	if rc.FailureThreshold > 0 {
		cb.FailureThreshold = rc.FailureThreshold
	}
	if rc.ResetTimeoutSecs > 0 {
		cb.ResetTimeout = time.Duration(rc.ResetTimeoutSecs) * time.Second
	}
	return retry, cb
}

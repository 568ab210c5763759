package googleapi

import (
	"fmt"
	"time"
)

// AuthRequiredError means no refresh token is stored for the account.
type AuthRequiredError struct {
	Service string
	Email   string
	Client  string
	Cause   error
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("auth required for %s %s (client %s); run: gdocs-mcp auth add %s", e.Service, e.Email, e.Client, e.Email)
}

func (e *AuthRequiredError) Unwrap() error { return e.Cause }

// CircuitBreakerError is returned without contacting Google while the breaker
// is open.
type CircuitBreakerError struct {
	Until time.Time
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("google api unavailable after repeated server errors; retry after %s", e.Until.Format(time.RFC3339))
}

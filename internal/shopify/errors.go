package shopify

import (
	"errors"
	"fmt"
)

// TransportError is returned for any Shopify call that failed at the HTTP
// layer. Retryability is classified here, at the point of origin, so callers
// never have to sniff error messages.
type TransportError struct {
	Status    int
	Method    string
	Path      string
	Body      string
	Retryable bool
	cause     error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("shopify %s %s failed (%d): %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("shopify %s %s failed: %v", e.Method, e.Path, e.cause)
}

func (e *TransportError) Unwrap() error {
	return e.cause
}

// IsRetryable reports whether err is a Shopify transport failure worth
// retrying: 429, any 5xx, or a network-level error (timeouts, resets).
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

func statusError(method, path string, status int, body string) *TransportError {
	return &TransportError{
		Status:    status,
		Method:    method,
		Path:      path,
		Body:      body,
		Retryable: status == 429 || status >= 500,
	}
}

func networkError(method, path string, err error) *TransportError {
	// Timeouts, resets and DNS failures are always worth retrying.
	return &TransportError{
		Method:    method,
		Path:      path,
		Retryable: true,
		cause:     err,
	}
}

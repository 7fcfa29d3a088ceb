package router

import (
	"errors"
	"fmt"

	"bridgeScope/internal/price"
	"bridgeScope/internal/provider"
	"bridgeScope/internal/sandbox"
)

// ErrNoRoutes is returned when no quote could be proven in time.
var ErrNoRoutes = errors.New("no bridge routes found")

// Errors that abort an aggregation, re-exported from the packages that raise them.
var (
	ErrPoolExhausted        = sandbox.ErrPoolExhausted
	ErrPriceUnavailable     = price.ErrPriceUnavailable
	ErrAllAmountUnsupported = provider.ErrAllAmountUnsupported
)

// UnsupportedProtocolError is returned for a pinned provider that cannot be served.
type UnsupportedProtocolError = provider.UnsupportedProtocolError

// ProviderError reports why a pinned provider produced no route.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

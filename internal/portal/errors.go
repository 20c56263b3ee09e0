package portal

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/playwright-community/playwright-go"
)

var (
	// ErrLaunch means the browser engine could not be started.
	ErrLaunch = errors.New("browser launch failed")
	// ErrAuthentication means the portal did not accept the credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNavigation means a page or frame could not be reached.
	ErrNavigation = errors.New("navigation failed")
	// ErrTimeout means the page did not settle within the configured timeout.
	ErrTimeout = errors.New("timed out waiting for page")
)

// IsBatchFatal reports whether err prevents any further identifier in the
// same session from being processed.
func IsBatchFatal(err error) bool {
	return errors.Is(err, ErrLaunch) || errors.Is(err, ErrAuthentication)
}

// wrap tags err with kind, or with ErrTimeout when the underlying failure
// was a timeout.
func wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		kind = ErrTimeout
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, playwright.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-resty/resty/v2"
	"google.golang.org/api/googleapi"

	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

// classifyTransport maps a failed call without an HTTP status onto a ProviderError.
// Cancellation of the caller's context is passed through unchanged.
func classifyTransport(ctx context.Context, name string, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewProviderError(errors.ProviderTimeout, name, err)
	}
	return errors.NewProviderError(errors.ProviderUnavailable, name, err)
}

// classifyStatus maps an HTTP error status onto a ProviderError. Client errors
// other than 408 and 429 are not retryable and come back as plain errors.
func classifyStatus(name string, status int, body string) error {
	err := fmt.Errorf("API request failed with status code %d: %s", status, truncate(body, 512))
	switch {
	case status == http.StatusTooManyRequests:
		return errors.NewProviderError(errors.ProviderRateLimited, name, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return errors.NewProviderError(errors.ProviderTimeout, name, err)
	case status >= 500:
		return errors.NewProviderError(errors.ProviderUnavailable, name, err)
	default:
		return err
	}
}

func classifyResty(ctx context.Context, name string, resp *resty.Response, err error) error {
	if err != nil {
		return classifyTransport(ctx, name, err)
	}
	if resp.IsError() {
		return classifyStatus(name, resp.StatusCode(), resp.String())
	}
	return nil
}

func classifyGoogle(ctx context.Context, name string, err error) error {
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		return classifyStatus(name, gerr.Code, gerr.Message)
	}
	return classifyTransport(ctx, name, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/helix-collective/z88/internal/core"
)

// statusCode extracts the HTTP status from any vendor SDK error, or 0.
func statusCode(err error) int {
	var oaiAPI *openai.APIError
	if errors.As(err, &oaiAPI) {
		return oaiAPI.HTTPStatusCode
	}
	var oaiReq *openai.RequestError
	if errors.As(err, &oaiReq) {
		return oaiReq.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

// classify converts a vendor error into a DomainError. Errors that are
// already domain errors pass through unchanged.
func classify(provider core.Provider, err error) error {
	if err == nil {
		return nil
	}

	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrTimeout(fmt.Sprintf("%s request timed out", provider)).WithCause(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return core.ErrTimeout(fmt.Sprintf("%s request timed out", provider)).WithCause(err)
		}
		return core.ErrNetwork(fmt.Sprintf("%s unreachable", provider)).WithCause(err)
	}

	status := statusCode(err)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrAuth(fmt.Sprintf("%s rejected credentials", provider)).WithCause(err)
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit(fmt.Sprintf("%s rate limited", provider)).WithCause(err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return core.ErrTimeout(fmt.Sprintf("%s request timed out", provider)).WithCause(err)
	case status >= 500:
		return core.ErrExecution(core.CodeProviderFailed, fmt.Sprintf("%s server error %d", provider, status)).WithCause(err)
	case status >= 400:
		return core.ErrValidation(core.CodeProviderFailed, fmt.Sprintf("%s rejected request (%d)", provider, status)).WithCause(err)
	}

	e := core.ErrExecution(core.CodeProviderFailed, fmt.Sprintf("calling %s", provider)).WithCause(err)
	e.Retryable = false
	return e
}

func emptyCompletion(provider core.Provider) error {
	e := core.ErrExecution(core.CodeEmptyCompletion, fmt.Sprintf("no content in %s response", provider))
	e.Retryable = false
	return e
}

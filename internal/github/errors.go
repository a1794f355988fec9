package github

import (
	"context"
	"errors"
	"net"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/regression-warden/internal/core"
)

// classifyError translates a go-github error into the core error taxonomy.
// This is the only place HTTP status codes are interpreted; everything
// above this boundary switches on core.ErrorKind.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return core.WrapError(core.KindTransient, err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return core.WrapError(core.KindTransient, err)
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch code := ghErr.Response.StatusCode; {
		case code == 401 || code == 403:
			return core.WrapError(core.KindAuth, err)
		case code == 404:
			return core.WrapError(core.KindNotFound, err)
		case code == 408 || code == 429 || code >= 500:
			return core.WrapError(core.KindTransient, err)
		default:
			return core.WrapError(core.KindInternal, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.KindTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.WrapError(core.KindTransient, err)
	}

	return core.WrapError(core.KindInternal, err)
}

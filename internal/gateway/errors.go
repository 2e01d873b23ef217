package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"

	"github.com/soralab/gh-productivity/internal/domain"
)

// wrapAPIError maps a REST client failure onto the collection error
// taxonomy. Quota trips carry the time until reset as a retry hint, 5xx
// and transport-level failures are retryable, permission and existence
// failures are permanent. Anything else passes through wrapped but
// unclassified, so it propagates without retries.
func wrapAPIError(unit string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &domain.CollectionError{
			Kind:       domain.KindRateLimited,
			Unit:       unit,
			RetryAfter: time.Until(rateErr.Rate.Reset.Time),
			Cause:      err,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		ce := &domain.CollectionError{Kind: domain.KindRateLimited, Unit: unit, Cause: err}
		if abuseErr.RetryAfter != nil {
			ce.RetryAfter = *abuseErr.RetryAfter
		}
		return ce
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch code := ghErr.Response.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return &domain.CollectionError{Kind: domain.KindForbidden, Unit: unit, Cause: err}
		case code == http.StatusNotFound || code == http.StatusGone || code == http.StatusUnavailableForLegalReasons:
			return &domain.CollectionError{Kind: domain.KindNotFound, Unit: unit, Cause: err}
		case code >= http.StatusInternalServerError:
			return &domain.CollectionError{Kind: domain.KindTransient, Unit: unit, Cause: err}
		default:
			return fmt.Errorf("%s: %w", unit, err)
		}
	}

	// Connection resets, timeouts and other transport failures.
	return &domain.CollectionError{Kind: domain.KindTransient, Unit: unit, Cause: err}
}

// isEmptyRepository detects the conflict response the commit listing
// endpoint returns for a repository with no commits.
func isEmptyRepository(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusConflict
}

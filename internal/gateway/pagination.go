package gateway

import (
	"context"
	"fmt"

	"github.com/google/go-github/v62/github"

	"github.com/soralab/gh-productivity/internal/domain"
	"github.com/soralab/gh-productivity/internal/ratelimit"
)

// listPages walks a paginated REST listing. fetch runs once per page,
// appending its results on success, and hands back the response so the
// loop can follow NextPage. A page pointer that fails to advance aborts
// the walk instead of looping forever.
func (g *GitHubGateway) listPages(ctx context.Context, category ratelimit.Category, unit string, fetch func(page int) (*github.Response, error)) error {
	for page := 1; ; {
		var resp *github.Response
		err := g.doRest(ctx, category, unit, func() (*github.Response, error) {
			var err error
			resp, err = fetch(page)
			return resp, err
		})
		if err != nil {
			return err
		}

		next := resp.NextPage
		if next == 0 {
			return nil
		}
		if next <= page {
			return &domain.CollectionError{
				Kind:  domain.KindProtocolViolation,
				Unit:  unit,
				Cause: fmt.Errorf("pagination did not advance: page %d points back to page %d", page, next),
			}
		}
		page = next
	}
}

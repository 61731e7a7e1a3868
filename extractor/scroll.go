package extractor

import (
	"context"
	"time"

	"shopify-catalog-scraper/internal/types"
)

// ScrollUntilStable scrolls to the bottom of the page until two consecutive
// height readings are equal or maxIterations scrolls were made, then returns
// to the top. It returns the number of scrolls made.
func ScrollUntilStable(ctx context.Context, page types.Page, maxIterations int, pause time.Duration, logger types.Logger) (int, error) {
	last, err := page.ScrollHeight(ctx)
	if err != nil {
		return 0, err
	}

	scrolls, stable := 0, false
	for !stable && scrolls < maxIterations {
		if err := page.ScrollToBottom(ctx); err != nil {
			return scrolls, err
		}
		scrolls++
		if err := sleep(ctx, pause); err != nil {
			return scrolls, err
		}

		height, err := page.ScrollHeight(ctx)
		if err != nil {
			return scrolls, err
		}
		stable = height == last
		last = height
	}
	if !stable {
		logger.Warnf("Page height still growing after %d scrolls, reading what is loaded", maxIterations)
	}

	return scrolls, page.ScrollToTop(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

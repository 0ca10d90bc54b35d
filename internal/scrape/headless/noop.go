package headless

import (
	"context"

	"github.com/JakeFAU/unbloq/internal/scrape"
)

// Disabled stands in for the pool when headless rendering is switched off.
type Disabled struct{}

// Fetch always fails with scrape.ErrRendererDisabled.
func (Disabled) Fetch(context.Context, string) (scrape.Page, error) {
	return scrape.Page{}, scrape.ErrRendererDisabled
}

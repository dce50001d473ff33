// Package hp adapts HP's multi-product warranty check page to the
// warranty.Page interface. Every selector and text marker comes from
// config.MarkupConfig.
package hp

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/warranty-cli/internal/config"
	"github.com/xkilldash9x/warranty-cli/internal/warranty"
	"go.uber.org/zap"
)

// Browser is the set of page primitives the adapter drives.
// *browser.Session implements it.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	HasClass(ctx context.Context, selector, class string) (bool, error)
	Attributes(ctx context.Context, selector, name string) ([]string, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
}

// Adapter implements warranty.Page for support.hp.com.
type Adapter struct {
	browser Browser
	formURL string
	markup  config.MarkupConfig
	logger  *zap.Logger
}

var _ warranty.Page = (*Adapter)(nil)

// New creates an Adapter.
func New(b Browser, cfg config.VendorConfig, logger *zap.Logger) *Adapter {
	return &Adapter{
		browser: b,
		formURL: cfg.WarrantyURL,
		markup:  cfg.Markup,
		logger:  logger.Named("hp"),
	}
}

// OpenForm loads the multi-product form and accepts the cookie banner if it
// is showing.
func (a *Adapter) OpenForm(ctx context.Context) error {
	if err := a.browser.Navigate(ctx, a.formURL); err != nil {
		return err
	}
	a.dismissCookies(ctx)
	return nil
}

func (a *Adapter) dismissCookies(ctx context.Context) {
	if a.markup.CookieAcceptSelector == "" {
		return
	}
	present, err := a.browser.Exists(ctx, a.markup.CookieAcceptSelector)
	if err != nil || !present {
		return
	}
	if err := a.browser.Click(ctx, a.markup.CookieAcceptSelector); err != nil {
		a.logger.Debug("Cookie banner could not be dismissed.", zap.Error(err))
		return
	}
	a.logger.Debug("Cookie banner dismissed.")
}

// ResetForm clears the form and adds rows until rows serial fields exist.
// A cleared form holds DefaultFormRows rows. Without a clear control the rows
// already on the page are counted.
func (a *Adapter) ResetForm(ctx context.Context, rows int) error {
	a.dismissCookies(ctx)

	have := -1
	if a.markup.ClearFormSelector != "" {
		present, err := a.browser.Exists(ctx, a.markup.ClearFormSelector)
		if err != nil {
			return err
		}
		if present {
			if err := a.browser.Click(ctx, a.markup.ClearFormSelector); err != nil {
				return fmt.Errorf("clear form: %w", err)
			}
			have = min(a.markup.DefaultFormRows, rows)
		}
	}
	if have < 0 {
		var err error
		if have, err = a.countRows(ctx, rows); err != nil {
			return err
		}
	}

	for ; have < rows; have++ {
		if err := a.browser.Click(ctx, a.markup.AddRowSelector); err != nil {
			return fmt.Errorf("add form row %d: %w", have, err)
		}
	}
	a.logger.Debug("Form reset.", zap.Int("rows", rows))
	return nil
}

// countRows counts consecutive serial fields, stopping at limit.
func (a *Adapter) countRows(ctx context.Context, limit int) (int, error) {
	n := 0
	for ; n < limit; n++ {
		ok, err := a.browser.Exists(ctx, a.serialSelector(n))
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
	}
	return n, nil
}

func (a *Adapter) FillSerial(ctx context.Context, index int, serial string) (bool, error) {
	return a.fill(ctx, a.serialSelector(index), serial)
}

func (a *Adapter) FillProduct(ctx context.Context, index int, product string) (bool, error) {
	return a.fill(ctx, fmt.Sprintf(a.markup.ProductFieldSelector, index), product)
}

func (a *Adapter) fill(ctx context.Context, selector, value string) (bool, error) {
	ok, err := a.browser.Exists(ctx, selector)
	if err != nil || !ok {
		return false, err
	}
	if err := a.browser.Type(ctx, selector, value); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) Submit(ctx context.Context) error {
	return a.browser.Click(ctx, a.markup.SubmitSelector)
}

// Outcome reports the summary page by its URL and identification failure by
// the vendor's error text.
func (a *Adapter) Outcome(ctx context.Context) (warranty.Outcome, error) {
	url, err := a.browser.URL(ctx)
	if err != nil {
		return warranty.OutcomePending, err
	}
	if strings.Contains(url, a.markup.SummaryURLMarker) {
		return warranty.OutcomeSummary, nil
	}

	html, err := a.browser.HTML(ctx)
	if err != nil {
		return warranty.OutcomePending, err
	}
	if containsFold(html, a.markup.IdentificationFailed) {
		return warranty.OutcomeIdentificationFailed, nil
	}
	return warranty.OutcomePending, nil
}

func (a *Adapter) SerialRejected(ctx context.Context, index int) (bool, error) {
	return a.browser.HasClass(ctx, a.serialSelector(index), a.markup.InvalidFieldClass)
}

// ResultLinks collects the view-details and view-options links of each row.
func (a *Adapter) ResultLinks(ctx context.Context, rows int) ([]string, error) {
	var links []string
	for i := 0; i < rows; i++ {
		for _, pattern := range []string{a.markup.ViewDetailsSelector, a.markup.ViewOptionsSelector} {
			hrefs, err := a.browser.Attributes(ctx, fmt.Sprintf(pattern, i), "href")
			if err != nil {
				return nil, err
			}
			links = append(links, hrefs...)
		}
	}
	return links, nil
}

// LoadState reads the markers from the page HTML. The stuck marker wins over
// the loading marker.
func (a *Adapter) LoadState(ctx context.Context) (warranty.LoadState, error) {
	html, err := a.browser.HTML(ctx)
	if err != nil {
		return warranty.LoadStateLoading, err
	}
	switch {
	case containsFold(html, a.markup.StuckMarker):
		return warranty.LoadStateStuck, nil
	case a.markup.LoadingMarker != "" && strings.Contains(html, a.markup.LoadingMarker):
		return warranty.LoadStateLoading, nil
	default:
		return warranty.LoadStateLoaded, nil
	}
}

func (a *Adapter) Reload(ctx context.Context) error {
	return a.browser.Reload(ctx)
}

func (a *Adapter) Navigate(ctx context.Context, url string) error {
	return a.browser.Navigate(ctx, url)
}

func (a *Adapter) WarrantyRendered(ctx context.Context) (bool, error) {
	html, err := a.browser.HTML(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(html, a.markup.WarrantyContentMarker), nil
}

func (a *Adapter) HTML(ctx context.Context) (string, error) {
	return a.browser.HTML(ctx)
}

func (a *Adapter) CurrentURL(ctx context.Context) (string, error) {
	return a.browser.URL(ctx)
}

func (a *Adapter) serialSelector(index int) string {
	return fmt.Sprintf(a.markup.SerialFieldSelector, index)
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

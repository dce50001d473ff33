package hp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/warranty-cli/internal/config"
	"github.com/xkilldash9x/warranty-cli/internal/warranty"
	"go.uber.org/zap/zaptest"
)

// fakeBrowser is an in-memory page: a set of present selectors, classes and
// attributes, plus click handlers that mutate it.
type fakeBrowser struct {
	url     string
	html    string
	present map[string]bool
	classes map[string][]string
	attrs   map[string][]string
	onClick map[string]func()

	navigated []string
	clicks    []string
	checked   []string
	typed     map[string]string
	reloads   int
	htmlErr   error
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		present: make(map[string]bool),
		classes: make(map[string][]string),
		attrs:   make(map[string][]string),
		onClick: make(map[string]func()),
		typed:   make(map[string]string),
	}
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.navigated = append(b.navigated, url)
	b.url = url
	return nil
}

func (b *fakeBrowser) Reload(context.Context) error {
	b.reloads++
	return nil
}

func (b *fakeBrowser) HTML(context.Context) (string, error) {
	return b.html, b.htmlErr
}

func (b *fakeBrowser) URL(context.Context) (string, error) {
	return b.url, nil
}

func (b *fakeBrowser) Exists(_ context.Context, selector string) (bool, error) {
	b.checked = append(b.checked, selector)
	return b.present[selector], nil
}

func (b *fakeBrowser) HasClass(_ context.Context, selector, class string) (bool, error) {
	for _, c := range b.classes[selector] {
		if c == class {
			return true, nil
		}
	}
	return false, nil
}

func (b *fakeBrowser) Attributes(_ context.Context, selector, name string) ([]string, error) {
	return b.attrs[selector+"@"+name], nil
}

func (b *fakeBrowser) Click(_ context.Context, selector string) error {
	b.clicks = append(b.clicks, selector)
	if fn, ok := b.onClick[selector]; ok {
		fn()
	}
	return nil
}

func (b *fakeBrowser) Type(_ context.Context, selector, text string) error {
	b.typed[selector] = text
	return nil
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeBrowser, config.VendorConfig) {
	t.Helper()
	cfg := config.NewDefaultConfig().Vendor
	b := newFakeBrowser()
	return New(b, cfg, zaptest.NewLogger(t)), b, cfg
}

// withFormRows simulates the vendor form: it starts with the default rows,
// clear resets to them and add-row appends one.
func withFormRows(b *fakeBrowser, m config.MarkupConfig) {
	rows := 0
	setRows := func(n int) {
		for i := 0; i < 20; i++ {
			b.present[fmt.Sprintf(m.SerialFieldSelector, i)] = i < n
			b.present[fmt.Sprintf(m.ProductFieldSelector, i)] = i < n
		}
		rows = n
	}
	setRows(m.DefaultFormRows)
	b.present[m.ClearFormSelector] = true
	b.onClick[m.ClearFormSelector] = func() { setRows(m.DefaultFormRows) }
	b.onClick[m.AddRowSelector] = func() { setRows(rows + 1) }
}

func TestOpenForm(t *testing.T) {
	ctx := context.Background()

	t.Run("dismisses the cookie banner", func(t *testing.T) {
		a, b, cfg := newTestAdapter(t)
		b.present[cfg.Markup.CookieAcceptSelector] = true

		require.NoError(t, a.OpenForm(ctx))
		assert.Equal(t, []string{cfg.WarrantyURL}, b.navigated)
		assert.Equal(t, []string{cfg.Markup.CookieAcceptSelector}, b.clicks)
	})

	t.Run("no banner no click", func(t *testing.T) {
		a, b, _ := newTestAdapter(t)
		require.NoError(t, a.OpenForm(ctx))
		assert.Empty(t, b.clicks)
	})
}

func TestResetForm(t *testing.T) {
	ctx := context.Background()

	t.Run("adds rows beyond the default", func(t *testing.T) {
		a, b, cfg := newTestAdapter(t)
		withFormRows(b, cfg.Markup)

		require.NoError(t, a.ResetForm(ctx, 15))
		adds := 0
		for _, c := range b.clicks {
			if c == cfg.Markup.AddRowSelector {
				adds++
			}
		}
		assert.Equal(t, 13, adds)
		assert.Equal(t, cfg.Markup.ClearFormSelector, b.clicks[0])
		assert.True(t, b.present[fmt.Sprintf(cfg.Markup.SerialFieldSelector, 14)])
	})

	t.Run("cleared form starts from the configured default rows", func(t *testing.T) {
		_, b, cfg := newTestAdapter(t)
		cfg.Markup.DefaultFormRows = 4
		a := New(b, cfg, zaptest.NewLogger(t))
		withFormRows(b, cfg.Markup)

		require.NoError(t, a.ResetForm(ctx, 6))
		assert.Equal(t, []string{cfg.Markup.ClearFormSelector, cfg.Markup.AddRowSelector, cfg.Markup.AddRowSelector}, b.clicks)
		assert.NotContains(t, b.checked, fmt.Sprintf(cfg.Markup.SerialFieldSelector, 0))
		assert.True(t, b.present[fmt.Sprintf(cfg.Markup.SerialFieldSelector, 5)])
	})

	t.Run("without a clear control existing rows are counted", func(t *testing.T) {
		a, b, cfg := newTestAdapter(t)
		withFormRows(b, cfg.Markup)
		b.present[cfg.Markup.ClearFormSelector] = false
		b.onClick[cfg.Markup.AddRowSelector]()

		require.NoError(t, a.ResetForm(ctx, 5))
		assert.Equal(t, []string{cfg.Markup.AddRowSelector, cfg.Markup.AddRowSelector}, b.clicks)
		assert.Contains(t, b.checked, fmt.Sprintf(cfg.Markup.SerialFieldSelector, 0))
	})

	t.Run("default size needs no extra rows", func(t *testing.T) {
		a, b, cfg := newTestAdapter(t)
		withFormRows(b, cfg.Markup)

		require.NoError(t, a.ResetForm(ctx, 2))
		assert.Equal(t, []string{cfg.Markup.ClearFormSelector}, b.clicks)
	})
}

func TestFillFields(t *testing.T) {
	ctx := context.Background()
	a, b, cfg := newTestAdapter(t)
	withFormRows(b, cfg.Markup)

	ok, err := a.FillSerial(ctx, 1, "5CD1234")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5CD1234", b.typed["#wFormSerialNumber1"])

	ok, err = a.FillProduct(ctx, 0, "2Z123EA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2Z123EA", b.typed["#wFormProductNum0"])

	ok, err = a.FillSerial(ctx, 7, "5CD9999")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotContains(t, b.typed, "#wFormSerialNumber7")

	require.NoError(t, a.Submit(ctx))
	assert.Equal(t, cfg.Markup.SubmitSelector, b.clicks[len(b.clicks)-1])
}

func TestOutcome(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		url  string
		html string
		want warranty.Outcome
	}{
		{"summary url", "https://support.hp.com/us-en/warrantyresult", "<html></html>", warranty.OutcomeSummary},
		{"identification failure text", "https://support.hp.com/us-en/check-warranty#multiple", "<p>We are Unable to identify your product</p>", warranty.OutcomeIdentificationFailed},
		{"neither", "https://support.hp.com/us-en/check-warranty#multiple", "<div class=\"loading-spinner\"></div>", warranty.OutcomePending},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, b, _ := newTestAdapter(t)
			b.url = tc.url
			b.html = tc.html

			got, err := a.Outcome(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSerialRejected(t *testing.T) {
	ctx := context.Background()
	a, b, cfg := newTestAdapter(t)
	b.classes["#wFormSerialNumber1"] = []string{"form-control", cfg.Markup.InvalidFieldClass}

	rejected, err := a.SerialRejected(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rejected)

	rejected, err = a.SerialRejected(ctx, 0)
	require.NoError(t, err)
	assert.False(t, rejected)
}

func TestResultLinks(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newTestAdapter(t)
	b.attrs["#viewDetails0@href"] = []string{"https://support.hp.com/us-en/warrantyresult/a/5CDA"}
	b.attrs["#viewOptions1@href"] = []string{"https://support.hp.com/us-en/warrantyresult/b/5CDB"}
	b.attrs["#viewDetails5@href"] = []string{"https://support.hp.com/us-en/warrantyresult/z/5CDZ"}

	links, err := a.ResultLinks(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://support.hp.com/us-en/warrantyresult/a/5CDA",
		"https://support.hp.com/us-en/warrantyresult/b/5CDB",
	}, links)
}

func TestLoadState(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		html string
		want warranty.LoadState
	}{
		{"spinner", `<div class="loading-spinner"></div>`, warranty.LoadStateLoading},
		{"stuck wins over spinner", `<div class="loading-spinner"></div><p>Please refresh the page</p>`, warranty.LoadStateStuck},
		{"loaded", `<label>Start date</label>`, warranty.LoadStateLoaded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, b, _ := newTestAdapter(t)
			b.html = tc.html

			got, err := a.LoadState(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("html errors are passed on", func(t *testing.T) {
		a, b, _ := newTestAdapter(t)
		b.htmlErr = context.DeadlineExceeded
		_, err := a.LoadState(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWarrantyRendered(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newTestAdapter(t)

	b.html = `<div class="loading-spinner"></div>`
	ok, err := a.WarrantyRendered(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	b.html = `<div><label>Start date</label>April 01, 2024</div>`
	ok, err = a.WarrantyRendered(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

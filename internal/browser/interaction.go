package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// RunActions runs chromedp actions on the session's tab. ctx bounds the
// operation without replacing the session's own lifetime.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	// Report the caller's cancellation ahead of chromedp's wrapped error.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	return err
}

func (s *Session) timed(ctx context.Context, timeout time.Duration, what string, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.RunActions(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if opCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out after %v: %w", what, timeout, opCtx.Err())
	}
	return fmt.Errorf("%s failed: %w", what, err)
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.timed(ctx, s.navigationTimeout, "navigation to "+url, chromedp.Navigate(url))
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context) error {
	return s.timed(ctx, s.navigationTimeout, "reload", chromedp.Reload())
}

// HTML returns the outer HTML of the document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.timed(ctx, s.actionTimeout, "read html", chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// URL returns the address of the current page.
func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	err := s.timed(ctx, s.actionTimeout, "read location", chromedp.Location(&url))
	return url, err
}

// Evaluate runs a JavaScript expression and decodes its result into res.
func (s *Session) Evaluate(ctx context.Context, expression string, res interface{}) error {
	return s.timed(ctx, s.actionTimeout, "evaluate", chromedp.Evaluate(expression, res))
}

// Exists reports whether selector matches an element right now, without
// waiting for one to appear.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := s.Evaluate(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &ok)
	return ok, err
}

// HasClass reports whether the element matching selector carries class.
func (s *Session) HasClass(ctx context.Context, selector, class string) (bool, error) {
	var ok bool
	script := fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	return el !== null && el.classList.contains(%s);
})()`, jsString(selector), jsString(class))
	err := s.Evaluate(ctx, script, &ok)
	return ok, err
}

// Attributes returns the non-empty values of name on every element matching
// selector. DOM properties are preferred so href comes back absolute.
func (s *Session) Attributes(ctx context.Context, selector, name string) ([]string, error) {
	var values []string
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s))
	.map(el => String(el[%[2]s] || el.getAttribute(%[2]s) || ""))
	.filter(v => v !== "")`, jsString(selector), jsString(name))
	if err := s.Evaluate(ctx, script, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Click clicks the element matching selector once it is visible.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking.", zap.String("selector", selector))
	return s.timed(ctx, s.actionTimeout, "click "+selector,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

// Type replaces the value of the input matching selector by typing text.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	return s.timed(ctx, s.actionTimeout, "type into "+selector,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

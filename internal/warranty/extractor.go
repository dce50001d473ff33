package warranty

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xkilldash9x/warranty-cli/internal/computer"
	"go.uber.org/zap"
)

const (
	startDateLabel = "Start date"
	endDateLabel   = "End date"

	// warrantyDateLayout is how the vendor prints dates, e.g. "April 01, 2024".
	warrantyDateLayout = "January 02, 2006"
)

var warrantyDatePattern = regexp.MustCompile(`[A-Za-z]+ \d{1,2}, \d{4}`)

// Extractor reads the warranty dates from a computer's detail page.
type Extractor struct {
	waiter        *Waiter
	loadTimeout   time.Duration
	settleTimeout time.Duration
	logger        *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(waiter *Waiter, loadTimeout, settleTimeout time.Duration, logger *zap.Logger) *Extractor {
	return &Extractor{
		waiter:        waiter,
		loadTimeout:   loadTimeout,
		settleTimeout: settleTimeout,
		logger:        logger.Named("extractor"),
	}
}

// Extract opens c.URL and fills c's warranty dates. A page that never loads
// is recorded on c as a timeout and is not an error. Missing or malformed
// dates on a loaded page are returned as errors.
func (e *Extractor) Extract(ctx context.Context, page ResultPage, c *computer.Computer) error {
	logger := e.logger.With(zap.String("serial", c.SerialNumber), zap.String("url", c.URL))

	if err := page.Navigate(ctx, c.URL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Navigation failed, recording timeout.", zap.Error(err))
		c.Error = computer.ErrorTimeout
		return nil
	}

	if !e.waiter.WaitForLoad(ctx, page, e.loadTimeout) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Error = computer.ErrorTimeout
		return nil
	}

	// The warranty widgets render after the load marker disappears. Not seeing
	// them here is left for the parser to report.
	rendered, err := e.waiter.WaitFor(ctx, e.settleTimeout, func(ctx context.Context) (bool, error) {
		ok, err := page.WarrantyRendered(ctx)
		return ok && err == nil, nil
	})
	if err != nil {
		return err
	}
	if !rendered {
		logger.Debug("Warranty content not detected before parsing.")
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("read warranty page %s: %w", c.URL, err)
	}

	start, end, err := ParseWarranty(html)
	if err != nil {
		var notFound *WarrantyNotFoundError
		if errors.As(err, &notFound) {
			notFound.URL = currentURL(ctx, page, c.URL)
			return notFound
		}
		return fmt.Errorf("parse warranty page %s: %w", c.URL, err)
	}

	c.WarrantyStart = start
	c.WarrantyEnd = end
	logger.Debug("Warranty extracted.",
		zap.Time("start", start),
		zap.Time("end", end),
	)
	return nil
}

// ParseWarranty scans the label elements of a warranty page for the start and
// end dates. The first occurrence of each label wins. A date that does not
// parse is an error; a label that is missing yields *WarrantyNotFoundError
// with an empty URL.
func ParseWarranty(html string) (start, end time.Time, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse html: %w", err)
	}

	var parseErr error
	doc.Find("label").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		var target *time.Time
		switch strings.TrimSpace(label.Text()) {
		case startDateLabel:
			target = &start
		case endDateLabel:
			target = &end
		default:
			return true
		}
		if !target.IsZero() {
			return true
		}

		raw, ok := dateAfterLabel(label)
		if !ok {
			return true
		}
		parsed, err := time.Parse(warrantyDateLayout, raw)
		if err != nil {
			parseErr = fmt.Errorf("malformed date %q after %q: %w", raw, strings.TrimSpace(label.Text()), err)
			return false
		}
		*target = parsed
		return start.IsZero() || end.IsZero()
	})
	if parseErr != nil {
		return time.Time{}, time.Time{}, parseErr
	}

	var missing []string
	if start.IsZero() {
		missing = append(missing, startDateLabel)
	}
	if end.IsZero() {
		missing = append(missing, endDateLabel)
	}
	if len(missing) > 0 {
		return time.Time{}, time.Time{}, &WarrantyNotFoundError{Missing: missing}
	}
	return start, end, nil
}

// dateAfterLabel returns the first date-shaped string that follows the label
// inside its parent element.
func dateAfterLabel(label *goquery.Selection) (string, bool) {
	labelText := label.Text()
	scope := label.Parent().Text()
	idx := strings.Index(scope, labelText)
	if idx < 0 {
		return "", false
	}
	match := warrantyDatePattern.FindString(scope[idx+len(labelText):])
	return match, match != ""
}

func currentURL(ctx context.Context, page ResultPage, fallback string) string {
	url, err := page.CurrentURL(ctx)
	if err != nil || url == "" {
		return fallback
	}
	return url
}

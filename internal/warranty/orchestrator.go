package warranty

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/xkilldash9x/warranty-cli/internal/computer"
	"github.com/xkilldash9x/warranty-cli/internal/observability"
	"go.uber.org/zap"
)

// Options tunes the Orchestrator's deadlines.
type Options struct {
	LoadTimeout    time.Duration
	OutcomeTimeout time.Duration
	SettleTimeout  time.Duration
	// ProductQueryName is the query parameter appended to result URLs that
	// do not already carry the product number.
	ProductQueryName string
}

// Orchestrator runs one batch through the lookup form and the detail pages.
type Orchestrator struct {
	page      Page
	waiter    *Waiter
	extractor *Extractor
	opts      Options
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewOrchestrator creates an Orchestrator bound to page.
func NewOrchestrator(page Page, waiter *Waiter, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	if opts.ProductQueryName == "" {
		opts.ProductQueryName = "productNumber"
	}
	return &Orchestrator{
		page:      page,
		waiter:    waiter,
		extractor: NewExtractor(waiter, opts.LoadTimeout, opts.SettleTimeout, logger),
		opts:      opts,
		logger:    logger.Named("orchestrator"),
		metrics:   metrics,
	}
}

// Process looks up every computer in batch. The returned slice holds the
// computers that reached the detail-page stage first, followed by those set
// aside along the way, each carrying its Error. Returned errors are fatal for
// the run.
func (o *Orchestrator) Process(ctx context.Context, batch []*computer.Computer) ([]*computer.Computer, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	active := slices.Clone(batch)
	var setAside []*computer.Computer

	if err := o.page.OpenForm(ctx); err != nil {
		return nil, fmt.Errorf("open lookup form: %w", err)
	}
	if !o.waiter.WaitForLoad(ctx, o.page, o.opts.LoadTimeout) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: lookup form did not load", ErrUnexpectedPageState)
	}

	outcome, err := o.submitSerials(ctx, active)
	if err != nil {
		return nil, err
	}

	if outcome == OutcomeIdentificationFailed {
		var rejected []*computer.Computer
		active, rejected, err = o.removeRejected(ctx, active)
		if err != nil {
			return nil, err
		}
		setAside = append(setAside, rejected...)

		if len(rejected) > 0 && len(active) > 0 {
			o.logger.Info("Resubmitting without rejected serials.",
				zap.Int("rejected", len(rejected)),
				zap.Int("remaining", len(active)),
			)
			if outcome, err = o.submitSerials(ctx, active); err != nil {
				return nil, err
			}
		}
	}

	if outcome == OutcomeIdentificationFailed && len(active) > 0 {
		o.metrics.IncFallback()
		o.logger.Info("Falling back to product numbers.", zap.Int("computers", len(active)))
		if outcome, err = o.submitProducts(ctx, active); err != nil {
			return nil, err
		}
		if outcome != OutcomeSummary {
			for _, c := range active {
				c.Error = computer.ErrorUnidentified
			}
			o.logger.Warn("Computers could not be identified.", zap.Int("computers", len(active)))
			setAside = append(setAside, active...)
			active = nil
		}
	}

	if len(active) > 0 {
		var missing []*computer.Computer
		active, missing, err = o.resolveURLs(ctx, active)
		if err != nil {
			return nil, err
		}
		setAside = append(setAside, missing...)

		for _, c := range active {
			if err := o.extractor.Extract(ctx, o.page, c); err != nil {
				return nil, err
			}
		}
	}

	return append(active, setAside...), nil
}

// submitSerials resets the form for the given computers, fills their serial
// numbers, submits and waits for a recognised outcome.
func (o *Orchestrator) submitSerials(ctx context.Context, computers []*computer.Computer) (Outcome, error) {
	if err := o.page.ResetForm(ctx, len(computers)); err != nil {
		return OutcomePending, fmt.Errorf("reset lookup form: %w", err)
	}
	for i, c := range computers {
		ok, err := o.page.FillSerial(ctx, i, c.SerialNumber)
		if err != nil {
			return OutcomePending, fmt.Errorf("fill serial %d: %w", i, err)
		}
		if !ok {
			o.logger.Debug("Serial number field not present.", zap.Int("row", i), zap.String("serial", c.SerialNumber))
		}
	}
	return o.submit(ctx)
}

// submitProducts fills the product number field of each row that has one and
// resubmits. Serials stay in place from the previous submission.
func (o *Orchestrator) submitProducts(ctx context.Context, computers []*computer.Computer) (Outcome, error) {
	for i, c := range computers {
		if c.ProductNumber == "" {
			continue
		}
		ok, err := o.page.FillProduct(ctx, i, c.ProductNumber)
		if err != nil {
			return OutcomePending, fmt.Errorf("fill product number %d: %w", i, err)
		}
		if !ok {
			o.logger.Debug("Product number field not present.", zap.Int("row", i))
		}
	}
	return o.submit(ctx)
}

func (o *Orchestrator) submit(ctx context.Context) (Outcome, error) {
	if err := o.page.Submit(ctx); err != nil {
		return OutcomePending, fmt.Errorf("submit lookup form: %w", err)
	}
	return o.awaitOutcome(ctx)
}

func (o *Orchestrator) awaitOutcome(ctx context.Context) (Outcome, error) {
	outcome := OutcomePending
	done, err := o.waiter.WaitFor(ctx, o.opts.OutcomeTimeout, func(ctx context.Context) (bool, error) {
		current, err := o.page.Outcome(ctx)
		if err != nil {
			o.logger.Debug("Could not read outcome, retrying.", zap.Error(err))
			return false, nil
		}
		outcome = current
		return current != OutcomePending, nil
	})
	if err != nil {
		return OutcomePending, err
	}
	if !done {
		return OutcomePending, fmt.Errorf("%w: no outcome after %s at %s",
			ErrUnexpectedPageState, o.opts.OutcomeTimeout, currentURL(ctx, o.page, "unknown url"))
	}
	o.logger.Debug("Lookup outcome.", zap.Stringer("outcome", outcome))
	return outcome, nil
}

// removeRejected splits computers into those still in play and those whose
// serial field the vendor flagged as invalid.
func (o *Orchestrator) removeRejected(ctx context.Context, computers []*computer.Computer) (kept, rejected []*computer.Computer, err error) {
	for i, c := range computers {
		invalid, err := o.page.SerialRejected(ctx, i)
		if err != nil {
			return nil, nil, fmt.Errorf("inspect serial field %d: %w", i, err)
		}
		if invalid {
			c.Error = computer.ErrorInvalidSerial
			o.logger.Info("Serial rejected by vendor.", zap.String("serial", c.SerialNumber))
			rejected = append(rejected, c)
			continue
		}
		kept = append(kept, c)
	}
	return kept, rejected, nil
}

// resolveURLs assigns each computer the first result link that contains its
// serial number.
func (o *Orchestrator) resolveURLs(ctx context.Context, computers []*computer.Computer) (resolved, missing []*computer.Computer, err error) {
	links, err := o.page.ResultLinks(ctx, len(computers))
	if err != nil {
		return nil, nil, fmt.Errorf("read result links: %w", err)
	}
	for _, c := range computers {
		link, ok := MatchResultURL(links, c, o.opts.ProductQueryName)
		if !ok {
			c.Error = computer.ErrorResultURLNotFound
			o.logger.Warn("No result link for computer.", zap.String("serial", c.SerialNumber))
			missing = append(missing, c)
			continue
		}
		c.URL = link
		resolved = append(resolved, c)
	}
	return resolved, missing, nil
}

// MatchResultURL picks the first link containing c's serial number and makes
// sure it carries c's product number, adding it as the queryName parameter
// when absent.
func MatchResultURL(links []string, c *computer.Computer, queryName string) (string, bool) {
	for _, link := range links {
		if !strings.Contains(link, c.SerialNumber) {
			continue
		}
		if c.ProductNumber == "" || strings.Contains(link, c.ProductNumber) {
			return link, true
		}
		u, err := url.Parse(link)
		if err != nil {
			return link, true
		}
		q := u.Query()
		q.Set(queryName, c.ProductNumber)
		u.RawQuery = q.Encode()
		return u.String(), true
	}
	return "", false
}

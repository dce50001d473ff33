// Package warranty drives the vendor's multi-product warranty lookup: it fills
// the form for one batch of computers, classifies the result, retries once
// with the rejected serials removed, falls back to product numbers, resolves
// a detail URL per computer and reads the warranty dates from each page.
//
// All markup knowledge lives behind the Page interface so the state machine
// can run against a fake page in tests.
package warranty

import "context"

// LoadState is what a page currently shows while it loads.
type LoadState int

const (
	// LoadStateLoading means the loading marker is still on the page.
	LoadStateLoading LoadState = iota
	// LoadStateLoaded means the loading marker is gone.
	LoadStateLoaded
	// LoadStateStuck means the vendor asked for a refresh.
	LoadStateStuck
)

func (s LoadState) String() string {
	switch s {
	case LoadStateLoading:
		return "loading"
	case LoadStateLoaded:
		return "loaded"
	case LoadStateStuck:
		return "stuck"
	default:
		return "unknown"
	}
}

// Outcome classifies the page after the lookup form was submitted.
type Outcome int

const (
	// OutcomePending means neither known outcome is visible yet.
	OutcomePending Outcome = iota
	// OutcomeIdentificationFailed means the vendor could not identify at least one entry.
	OutcomeIdentificationFailed
	// OutcomeSummary means the results summary page was reached.
	OutcomeSummary
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeIdentificationFailed:
		return "identification_failed"
	case OutcomeSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// LoadProbe reports the loading state of the current page and can reload it.
type LoadProbe interface {
	LoadState(ctx context.Context) (LoadState, error)
	Reload(ctx context.Context) error
}

// ResultPage is the part of the page adapter used to read a warranty detail page.
type ResultPage interface {
	LoadProbe
	Navigate(ctx context.Context, url string) error
	// WarrantyRendered reports whether the warranty widgets are on the page yet.
	WarrantyRendered(ctx context.Context) (bool, error)
	HTML(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
}

// FormPage is the part of the page adapter that operates the lookup form.
// Row indexes are zero-based positions in the submitted batch.
type FormPage interface {
	// OpenForm navigates to the lookup form.
	OpenForm(ctx context.Context) error
	// ResetForm clears previous input and makes room for rows entries.
	ResetForm(ctx context.Context, rows int) error
	// FillSerial writes serial into row index. It reports false when the
	// row's field is not on the page.
	FillSerial(ctx context.Context, index int, serial string) (bool, error)
	// FillProduct writes a product number into row index, reporting false
	// when the field is absent.
	FillProduct(ctx context.Context, index int, product string) (bool, error)
	Submit(ctx context.Context) error
	Outcome(ctx context.Context) (Outcome, error)
	// SerialRejected reports whether row index is flagged as invalid.
	SerialRejected(ctx context.Context, index int) (bool, error)
	// ResultLinks returns every result-link href present for rows [0, rows).
	ResultLinks(ctx context.Context, rows int) ([]string, error)
}

// Page is the full adapter the Orchestrator needs.
type Page interface {
	FormPage
	ResultPage
}

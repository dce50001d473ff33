package reporting

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/warranty-cli/internal/warranty"
)

type jsonFailure struct {
	SerialNumber  string `json:"serial_number"`
	ProductNumber string `json:"product_number"`
	Error         string `json:"error"`
}

type jsonSummary struct {
	RunID          string         `json:"run_id"`
	Computers      int            `json:"computers"`
	Batches        int            `json:"batches"`
	Results        map[string]int `json:"results"`
	Failures       []jsonFailure  `json:"failures"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
}

// JSONReporter writes the summary as one indented JSON document.
type JSONReporter struct {
	w io.WriteCloser
}

// NewJSONReporter takes ownership of w.
func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{w: w}
}

func (r *JSONReporter) Write(summary warranty.Summary) error {
	doc := jsonSummary{
		RunID:          summary.RunID,
		Computers:      summary.Computers,
		Batches:        summary.Batches,
		Results:        summary.Results,
		Failures:       make([]jsonFailure, 0, len(summary.Failures)),
		ElapsedSeconds: summary.Elapsed.Seconds(),
	}
	for _, c := range summary.Failures {
		doc.Failures = append(doc.Failures, jsonFailure{
			SerialNumber:  c.SerialNumber,
			ProductNumber: c.ProductNumber,
			Error:         c.Error,
		})
	}

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.w.Close()
}

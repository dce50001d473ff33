package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/warranty-cli/internal/warranty"
)

// Reporter renders the summary of a lookup run.
type Reporter interface {
	// Write renders one run summary.
	Write(summary warranty.Summary) error
	// Close finalizes the report and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("table" or "json") writing to
// outputPath, or to stdout when outputPath is empty or "stdout".
func New(format, outputPath string) (Reporter, error) {
	if format != "table" && format != "json" {
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create report file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == "json" {
		return NewJSONReporter(writer), nil
	}
	return NewTableReporter(writer), nil
}

package computer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// DateLayout is how warranty dates are written to the results file.
const DateLayout = "2006-01-02"

var (
	// InputColumns is the exact header an input file must carry.
	InputColumns = []string{"serial_number", "product_number"}
	// OutputColumns is the header of the results file.
	OutputColumns = []string{"serial_number", "product_number", "warranty_start", "warranty_end", "url", "error"}
)

// ReadComputersFile opens path and reads it with ReadComputers.
func ReadComputersFile(path string) ([]*Computer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	computers, err := ReadComputers(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return computers, nil
}

// ReadComputers parses an input CSV. The header must be exactly
// serial_number,product_number. Rows without a serial number are dropped and
// a missing product number becomes the empty string.
func ReadComputers(r io.Reader) ([]*Computer, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: input has no header", ErrInvalidInput)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header, InputColumns); err != nil {
		return nil, err
	}

	var computers []*Computer
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if len(record) > len(InputColumns) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", ErrInvalidInput, line, len(record), len(InputColumns))
		}

		serial := strings.TrimSpace(record[0])
		if serial == "" {
			continue
		}
		var product string
		if len(record) > 1 {
			product = strings.TrimSpace(record[1])
		}
		computers = append(computers, New(serial, product))
	}
	return computers, nil
}

// ReadResults parses a results file back into Computers. Empty date cells
// become zero times.
func ReadResults(r io.Reader) ([]*Computer, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header, OutputColumns); err != nil {
		return nil, err
	}

	var computers []*Computer
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		c := New(record[0], record[1])
		if c.WarrantyStart, err = parseDate(record[2]); err != nil {
			return nil, fmt.Errorf("warranty_start for %s: %w", c.SerialNumber, err)
		}
		if c.WarrantyEnd, err = parseDate(record[3]); err != nil {
			return nil, fmt.Errorf("warranty_end for %s: %w", c.SerialNumber, err)
		}
		c.URL = record[4]
		c.Error = record[5]
		computers = append(computers, c)
	}
	return computers, nil
}

// WriteResults writes computers as results rows, preceded by the header
// when header is true.
func WriteResults(w io.Writer, computers []*Computer, header bool) error {
	writer := csv.NewWriter(w)
	if header {
		if err := writer.Write(OutputColumns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, c := range computers {
		record := []string{
			c.SerialNumber,
			c.ProductNumber,
			formatDate(c.WarrantyStart),
			formatDate(c.WarrantyEnd),
			c.URL,
			c.Error,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// ResultWriter persists results one batch at a time. The first batch
// truncates the file and writes the header; later batches are appended, so
// a run that aborts keeps every batch written before the failure.
type ResultWriter struct {
	path    string
	mu      sync.Mutex
	started bool
}

// NewResultWriter returns a writer for path. The file is not touched until
// the first batch is written.
func NewResultWriter(path string) *ResultWriter {
	return &ResultWriter{path: path}
}

// Path returns the file the writer targets.
func (w *ResultWriter) Path() string {
	return w.path
}

// WriteBatch appends batch to the results file.
func (w *ResultWriter) WriteBatch(_ context.Context, batch []*Computer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if !w.started {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(w.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}

	if err := WriteResults(f, batch, !w.started); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close results file: %w", err)
	}
	w.started = true
	return nil
}

func checkHeader(header, want []string) error {
	if len(header) > 0 {
		// Spreadsheet exports often start with a UTF-8 byte order mark.
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if !slices.Equal(header, want) {
		return fmt.Errorf("%w: columns %v do not match %v", ErrInvalidInput, header, want)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}

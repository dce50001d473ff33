// Package computer holds the Computer record that flows through a warranty
// lookup, the batching rules imposed by the vendor form, and the CSV formats
// used for input and output.
package computer

import (
	"errors"
	"time"
)

// ErrInvalidInput is returned when the input cannot be processed at all:
// too few computers to form a batch, or a CSV file with the wrong columns.
var ErrInvalidInput = errors.New("invalid input")

// Error texts recorded on a Computer for per-computer failures.
const (
	ErrorTimeout           = "Timeout"
	ErrorInvalidSerial     = "Invalid serial number."
	ErrorUnidentified      = "Identification failed."
	ErrorResultURLNotFound = "Result URL not found."
)

// Computer is one physical machine. SerialNumber and ProductNumber identify
// it; everything else is lookup state filled in as the run progresses.
type Computer struct {
	SerialNumber  string
	ProductNumber string
	// WarrantyStart and WarrantyEnd are zero until the warranty page was read.
	WarrantyStart time.Time
	WarrantyEnd   time.Time
	URL           string
	// Error is empty unless the lookup failed for this computer.
	Error string
}

// New returns a Computer with only its identity set.
func New(serialNumber, productNumber string) *Computer {
	return &Computer{SerialNumber: serialNumber, ProductNumber: productNumber}
}

// Equal reports whether c and other identify the same machine. Result fields
// are not compared.
func (c *Computer) Equal(other *Computer) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.SerialNumber == other.SerialNumber && c.ProductNumber == other.ProductNumber
}

// Failed reports whether an error was recorded for c.
func (c *Computer) Failed() bool {
	return c.Error != ""
}

// HasWarranty reports whether both warranty dates were set.
func (c *Computer) HasWarranty() bool {
	return !c.WarrantyStart.IsZero() && !c.WarrantyEnd.IsZero()
}

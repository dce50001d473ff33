package computer

import "fmt"

// MinBatchSize is the smallest group the vendor form accepts.
const MinBatchSize = 2

// MinMaxItems is the smallest batch limit for which rebalancing a single
// leftover still leaves MinBatchSize in the batch it borrows from.
const MinMaxItems = MinBatchSize + 1

// Batched splits computers into contiguous batches of at most maxItems and
// at least MinBatchSize entries. When the last chunk would hold a single
// computer, one computer moves over from the chunk before it.
func Batched(computers []*Computer, maxItems int) ([][]*Computer, error) {
	n := len(computers)
	if n < MinBatchSize {
		return nil, fmt.Errorf("%w: a minimum of %d computers is required, got %d", ErrInvalidInput, MinBatchSize, n)
	}
	if maxItems < MinMaxItems {
		return nil, fmt.Errorf("%w: batch size %d is below the minimum of %d", ErrInvalidInput, maxItems, MinMaxItems)
	}

	type span struct{ start, stop int }
	var spans []span
	for start := 0; start < n; start += maxItems {
		spans = append(spans, span{start, min(start+maxItems, n)})
	}
	if n%maxItems == 1 {
		spans[len(spans)-2].stop--
		spans[len(spans)-1].start--
	}

	batches := make([][]*Computer, 0, len(spans))
	for _, s := range spans {
		batches = append(batches, computers[s.start:s.stop:s.stop])
	}
	return batches, nil
}

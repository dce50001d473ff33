package warranty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/warranty-cli/internal/computer"
	"github.com/xkilldash9x/warranty-cli/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Processor looks up a single batch.
type Processor interface {
	Process(ctx context.Context, batch []*computer.Computer) ([]*computer.Computer, error)
}

// Sink persists the results of a finished batch.
type Sink interface {
	WriteBatch(ctx context.Context, batch []*computer.Computer) error
}

// Metric labels for per-computer results.
const (
	ResultOK            = "ok"
	ResultTimeout       = "timeout"
	ResultInvalidSerial = "invalid_serial"
	ResultUnidentified  = "unidentified"
	ResultMissingURL    = "missing_url"
	ResultOther         = "other"
)

// Summary is the tally of a run.
type Summary struct {
	RunID     string
	Computers int
	Batches   int
	// Results counts computers per result label.
	Results map[string]int
	// Failures lists the computers that finished with an error.
	Failures []*computer.Computer
	Elapsed  time.Duration
}

func (s *Summary) add(c *computer.Computer) string {
	result := Classify(c)
	s.Results[result]++
	s.Computers++
	if result != ResultOK {
		s.Failures = append(s.Failures, c)
	}
	return result
}

// Classify maps a processed computer to its result label.
func Classify(c *computer.Computer) string {
	switch c.Error {
	case "":
		return ResultOK
	case computer.ErrorTimeout:
		return ResultTimeout
	case computer.ErrorInvalidSerial:
		return ResultInvalidSerial
	case computer.ErrorUnidentified:
		return ResultUnidentified
	case computer.ErrorResultURLNotFound:
		return ResultMissingURL
	default:
		return ResultOther
	}
}

// RunnerConfig holds the Runner's knobs.
type RunnerConfig struct {
	MaxItems int
	// BatchInterval is the minimum spacing between batch submissions. Zero
	// disables pacing.
	BatchInterval time.Duration
}

// Runner splits the input into batches, processes them in order and hands
// each finished batch to every sink before starting the next one.
type Runner struct {
	processor Processor
	sinks     []Sink
	cfg       RunnerConfig
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewRunner creates a Runner.
func NewRunner(processor Processor, cfg RunnerConfig, logger *zap.Logger, metrics *observability.Metrics, sinks ...Sink) *Runner {
	limit := rate.Inf
	if cfg.BatchInterval > 0 {
		limit = rate.Every(cfg.BatchInterval)
	}
	return &Runner{
		processor: processor,
		sinks:     sinks,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.Named("runner"),
		metrics:   metrics,
	}
}

// Run processes all computers. Batches persisted before a fatal error stay
// persisted; the failing batch is not written.
func (r *Runner) Run(ctx context.Context, computers []*computer.Computer) (Summary, error) {
	started := time.Now()
	summary := Summary{
		RunID:   uuid.NewString(),
		Results: make(map[string]int),
	}
	logger := r.logger.With(zap.String("run_id", summary.RunID))

	batches, err := computer.Batched(computers, r.cfg.MaxItems)
	if err != nil {
		return summary, err
	}
	logger.Info("Starting warranty lookup.",
		zap.Int("computers", len(computers)),
		zap.Int("batches", len(batches)),
	)

	ctx = WithRunID(ctx, summary.RunID)
	for i, batch := range batches {
		if err := r.limiter.Wait(ctx); err != nil {
			return r.finish(summary, started), err
		}

		batchStart := time.Now()
		logger.Info("Processing batch.", zap.Int("batch", i+1), zap.Int("size", len(batch)))
		results, err := r.processor.Process(ctx, batch)
		r.metrics.ObserveBatch(time.Since(batchStart))
		if err != nil {
			r.metrics.IncBatch("failed")
			return r.finish(summary, started), fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err)
		}

		for _, sink := range r.sinks {
			if err := sink.WriteBatch(ctx, results); err != nil {
				r.metrics.IncBatch("failed")
				return r.finish(summary, started), fmt.Errorf("persist batch %d: %w", i+1, err)
			}
		}

		r.metrics.IncBatch("ok")
		summary.Batches++
		for _, c := range results {
			r.metrics.IncComputer(summary.add(c))
		}
		logger.Info("Batch done.",
			zap.Int("batch", i+1),
			zap.Duration("elapsed", time.Since(batchStart)),
		)
	}

	summary = r.finish(summary, started)
	logger.Info("Warranty lookup finished.",
		zap.Int("computers", summary.Computers),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

func (r *Runner) finish(s Summary, started time.Time) Summary {
	s.Elapsed = time.Since(started)
	return s
}

type runIDKey struct{}

// WithRunID stores the run identifier on ctx for sinks that record it.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run identifier stored by WithRunID.
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

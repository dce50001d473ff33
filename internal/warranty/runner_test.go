package warranty

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/warranty-cli/internal/computer"
	"github.com/xkilldash9x/warranty-cli/internal/observability"
	"go.uber.org/zap/zaptest"
)

func makeComputers(n int) []*computer.Computer {
	computers := make([]*computer.Computer, n)
	for i := range computers {
		computers[i] = computer.New(fmt.Sprintf("5CD%04d", i), "")
	}
	return computers
}

func withRunID() any {
	return mock.MatchedBy(func(ctx context.Context) bool { return RunIDFrom(ctx) != "" })
}

func batchOfSize(n int) any {
	return mock.MatchedBy(func(batch []*computer.Computer) bool { return len(batch) == n })
}

func echo(_ context.Context, batch []*computer.Computer) []*computer.Computer {
	return batch
}

func TestRunnerRun(t *testing.T) {
	ctx := context.Background()
	cfg := RunnerConfig{MaxItems: 15}

	t.Run("processes and persists every batch", func(t *testing.T) {
		metrics := observability.NewMetrics()
		processor := new(MockProcessor)
		processor.On("Process", withRunID(), mock.Anything).
			Return(echo, nil)
		sink := new(MockSink)
		sink.On("WriteBatch", withRunID(), batchOfSize(14)).Return(nil).Once()
		sink.On("WriteBatch", withRunID(), batchOfSize(2)).Return(nil).Once()

		summary, err := NewRunner(processor, cfg, zaptest.NewLogger(t), metrics, sink).Run(ctx, makeComputers(16))
		require.NoError(t, err)

		assert.NotEmpty(t, summary.RunID)
		assert.Equal(t, 2, summary.Batches)
		assert.Equal(t, 16, summary.Computers)
		assert.Equal(t, 16, summary.Results[ResultOK])
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues("ok")))
		assert.Equal(t, 16.0, testutil.ToFloat64(metrics.ComputersTotal.WithLabelValues(ResultOK)))
		processor.AssertNumberOfCalls(t, "Process", 2)
		sink.AssertExpectations(t)
	})

	t.Run("per computer failures are tallied", func(t *testing.T) {
		batch := makeComputers(4)
		batch[1].Error = computer.ErrorTimeout
		batch[2].Error = computer.ErrorInvalidSerial
		batch[3].Error = "something else"

		processor := new(MockProcessor)
		processor.On("Process", mock.Anything, mock.Anything).Return(batch, nil)

		summary, err := NewRunner(processor, cfg, zaptest.NewLogger(t), nil).Run(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{
			ResultOK:            1,
			ResultTimeout:       1,
			ResultInvalidSerial: 1,
			ResultOther:         1,
		}, summary.Results)
	})

	t.Run("fatal batch error stops the run before persisting", func(t *testing.T) {
		processor := new(MockProcessor)
		processor.On("Process", mock.Anything, batchOfSize(14)).Return(echo, nil).Once()
		processor.On("Process", mock.Anything, batchOfSize(2)).Return(nil, ErrUnexpectedPageState).Once()
		sink := new(MockSink)
		sink.On("WriteBatch", mock.Anything, batchOfSize(14)).Return(nil).Once()

		summary, err := NewRunner(processor, cfg, zaptest.NewLogger(t), nil, sink).Run(ctx, makeComputers(16))
		require.ErrorIs(t, err, ErrUnexpectedPageState)
		assert.True(t, IsFatal(err))
		assert.Contains(t, err.Error(), "batch 2 of 2")
		assert.Equal(t, 1, summary.Batches)
		sink.AssertExpectations(t)
		sink.AssertNumberOfCalls(t, "WriteBatch", 1)
	})

	t.Run("sink error stops the run", func(t *testing.T) {
		processor := new(MockProcessor)
		processor.On("Process", mock.Anything, mock.Anything).Return(echo, nil)
		sink := new(MockSink)
		sink.On("WriteBatch", mock.Anything, mock.Anything).Return(errBoom)

		_, err := NewRunner(processor, cfg, zaptest.NewLogger(t), nil, sink).Run(ctx, makeComputers(30))
		require.ErrorIs(t, err, errBoom)
		processor.AssertNumberOfCalls(t, "Process", 1)
	})

	t.Run("too few computers is invalid input", func(t *testing.T) {
		processor := new(MockProcessor)

		_, err := NewRunner(processor, cfg, zaptest.NewLogger(t), nil).Run(ctx, makeComputers(1))
		require.ErrorIs(t, err, computer.ErrInvalidInput)
		processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
	})

	t.Run("batches are paced", func(t *testing.T) {
		processor := new(MockProcessor)
		processor.On("Process", mock.Anything, mock.Anything).Return(echo, nil)

		runner := NewRunner(processor, RunnerConfig{MaxItems: 15, BatchInterval: 20 * time.Millisecond}, zaptest.NewLogger(t), nil)
		start := time.Now()
		summary, err := runner.Run(ctx, makeComputers(45))
		require.NoError(t, err)
		assert.Equal(t, 3, summary.Batches)
		assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	})

	t.Run("cancelled context stops pacing", func(t *testing.T) {
		processor := new(MockProcessor)
		processor.On("Process", mock.Anything, mock.Anything).Return(echo, nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		runner := NewRunner(processor, RunnerConfig{MaxItems: 15, BatchInterval: time.Hour}, zaptest.NewLogger(t), nil)
		_, err := runner.Run(cctx, makeComputers(4))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestClassify(t *testing.T) {
	tests := map[string]string{
		"":                              ResultOK,
		computer.ErrorTimeout:           ResultTimeout,
		computer.ErrorInvalidSerial:     ResultInvalidSerial,
		computer.ErrorUnidentified:      ResultUnidentified,
		computer.ErrorResultURLNotFound: ResultMissingURL,
		"kaboom":                        ResultOther,
	}
	for errText, want := range tests {
		c := computer.New("5CD0001", "")
		c.Error = errText
		assert.Equal(t, want, Classify(c), "error %q", errText)
	}
}

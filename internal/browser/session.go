package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/xkilldash9x/warranty-cli/internal/config"
	"go.uber.org/zap"
)

const (
	defaultNavigationTimeout = 90 * time.Second
	defaultActionTimeout     = 30 * time.Second
	shutdownTimeout          = 10 * time.Second
)

// Session is one Chrome instance with a single tab.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	navigationTimeout time.Duration
	actionTimeout     time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewSession starts Chrome and opens its first tab. The browser lives until
// Close is called or parent is canceled.
func NewSession(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	id := uuid.NewString()
	log := logger.Named("browser").With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, AllocatorOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(log.Sugar().Debugf))
	}
	ctx, cancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &Session{
		id:                id,
		ctx:               ctx,
		cancel:            cancel,
		logger:            log,
		allocCtx:          allocCtx,
		allocCancel:       allocCancel,
		navigationTimeout: cfg.NavigationTimeout,
		actionTimeout:     cfg.ActionTimeout,
	}
	if s.navigationTimeout <= 0 {
		s.navigationTimeout = defaultNavigationTimeout
	}
	if s.actionTimeout <= 0 {
		s.actionTimeout = defaultActionTimeout
	}

	// The first Run launches the browser so start-up failures surface here.
	if err := chromedp.Run(ctx, PersonaFrom(cfg).Apply(log)); err != nil {
		s.abort()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	log.Info("Browser started.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Close shuts the browser down and waits a bounded time for the process to
// exit. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- chromedp.Cancel(s.ctx)
		}()

		timer := time.NewTimer(shutdownTimeout)
		defer timer.Stop()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("browser shutdown: %w", err)
			}
		case <-timer.C:
			s.logger.Warn("Browser shutdown timed out, forcing.", zap.Duration("timeout", shutdownTimeout))
		}

		s.release()
		s.logger.Info("Browser closed.")
	})
	return s.closeErr
}

// abort releases a session whose browser never came up. chromedp.Cancel is
// skipped there: it takes the allocation token the tab cancel waits on, and a
// browser that failed to launch never hands it back.
func (s *Session) abort() {
	s.closeOnce.Do(s.release)
}

// release cancels the tab and allocator contexts. The tab cancel blocks until
// the browser process exits, so it is bounded by shutdownTimeout.
func (s *Session) release() {
	done := make(chan struct{})
	go func() {
		s.cancel()
		close(done)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("Browser context release timed out.", zap.Duration("timeout", shutdownTimeout))
	}
	s.allocCancel()
}

// Acquire starts a Session, passes it to fn and closes it when fn returns,
// including when fn panics.
func Acquire(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger, fn func(*Session) error) (err error) {
	s, err := NewSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			s.logger.Warn("Error while closing browser.", zap.Error(closeErr))
			if err == nil {
				err = closeErr
			}
		}
	}()
	return fn(s)
}

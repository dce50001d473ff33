package browser

import "context"

// CombineContext returns a context derived from primary that is also canceled
// when secondary is done. Values come from primary only, which is where
// chromedp keeps its target. secondary supplies the operation's deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

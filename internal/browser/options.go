// Package browser owns the Chrome instance used for a lookup run. It starts
// Chrome through chromedp, exposes a small set of page primitives and makes
// sure the browser is shut down however the run ends.
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/warranty-cli/internal/config"
)

// allocatorFlags returns the Chrome command-line flags derived from cfg, on
// top of chromedp's defaults. Keys carry no leading dashes.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		// Hardened hosts deny the sandbox; containers have a tiny /dev/shm.
		"no-sandbox":             true,
		"disable-dev-shm-usage":  true,
		"headless":               cfg.Headless,
		"hide-scrollbars":        cfg.Headless,
		"mute-audio":             cfg.Headless,
		"disable-gpu":            cfg.DisableGPU,
		"window-size":            "1280,1024",
		"disable-popup-blocking": true,
	}
	if cfg.Locale != "" {
		flags["lang"] = cfg.Locale
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		key, value, found := strings.Cut(arg, "=")
		if !found {
			flags[key] = true
			continue
		}
		flags[key] = value
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for key, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(key, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

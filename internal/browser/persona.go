package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/warranty-cli/internal/config"
	"go.uber.org/zap"
)

// Persona is the locale, timezone and user agent the vendor site sees.
type Persona struct {
	UserAgent string
	Locale    string
	Timezone  string
}

// PersonaFrom reads the persona settings out of cfg.
func PersonaFrom(cfg config.BrowserConfig) Persona {
	return Persona{
		UserAgent: cfg.UserAgent,
		Locale:    cfg.Locale,
		Timezone:  cfg.Timezone,
	}
}

// AcceptLanguage renders the Accept-Language header for the persona's
// locale, e.g. "en-US,en;q=0.9".
func (p Persona) AcceptLanguage() string {
	if p.Locale == "" {
		return ""
	}
	lang, _, found := strings.Cut(p.Locale, "-")
	if !found || lang == "" {
		return p.Locale
	}
	return fmt.Sprintf("%s,%s;q=0.9", p.Locale, lang)
}

// Apply returns the CDP overrides for the current tab. Empty fields leave the
// browser default in place.
func (p Persona) Apply(logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser persona",
		zap.String("locale", p.Locale),
		zap.String("timezone", p.Timezone),
		zap.Bool("user_agent_override", p.UserAgent != ""),
	)

	var tasks chromedp.Tasks
	if p.UserAgent != "" {
		override := emulation.SetUserAgentOverride(p.UserAgent)
		if lang := p.AcceptLanguage(); lang != "" {
			override = override.WithAcceptLanguage(lang)
		}
		tasks = append(tasks, override)
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(strings.ReplaceAll(p.Locale, "-", "_")))
	}
	if p.Timezone != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if err := emulation.SetTimezoneOverride(p.Timezone).Do(ctx); err != nil {
				return fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
			}
			return nil
		}))
	}
	return tasks
}

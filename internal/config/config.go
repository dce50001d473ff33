// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Vendor  VendorConfig  `mapstructure:"vendor" yaml:"vendor"`
	Lookup  LookupConfig  `mapstructure:"lookup" yaml:"lookup"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	// Run gets its values from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance driven by chromedp.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	// Locale drives how the vendor page formats dates. The extractor reads
	// en-US long dates.
	Locale   string `mapstructure:"locale" yaml:"locale"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
}

// VendorConfig describes the vendor warranty page. The markup strings are an
// external, unversioned protocol; they live here so a markup change can be
// patched from config.yaml without a rebuild.
type VendorConfig struct {
	WarrantyURL string       `mapstructure:"warranty_url" yaml:"warranty_url"`
	Markup      MarkupConfig `mapstructure:"markup" yaml:"markup"`
}

// MarkupConfig holds selectors and text markers for the HP multi-product form.
// Selectors containing %d are formatted with the zero-based row index.
type MarkupConfig struct {
	CookieAcceptSelector   string `mapstructure:"cookie_accept_selector" yaml:"cookie_accept_selector"`
	ClearFormSelector      string `mapstructure:"clear_form_selector" yaml:"clear_form_selector"`
	AddRowSelector         string `mapstructure:"add_row_selector" yaml:"add_row_selector"`
	SubmitSelector         string `mapstructure:"submit_selector" yaml:"submit_selector"`
	SerialFieldSelector    string `mapstructure:"serial_field_selector" yaml:"serial_field_selector"`
	ProductFieldSelector   string `mapstructure:"product_field_selector" yaml:"product_field_selector"`
	ViewDetailsSelector    string `mapstructure:"view_details_selector" yaml:"view_details_selector"`
	ViewOptionsSelector    string `mapstructure:"view_options_selector" yaml:"view_options_selector"`
	InvalidFieldClass      string `mapstructure:"invalid_field_class" yaml:"invalid_field_class"`
	IdentificationFailed   string `mapstructure:"identification_failed_marker" yaml:"identification_failed_marker"`
	SummaryURLMarker       string `mapstructure:"summary_url_marker" yaml:"summary_url_marker"`
	LoadingMarker          string `mapstructure:"loading_marker" yaml:"loading_marker"`
	StuckMarker            string `mapstructure:"stuck_marker" yaml:"stuck_marker"`
	WarrantyContentMarker  string `mapstructure:"warranty_content_marker" yaml:"warranty_content_marker"`
	DefaultFormRows        int    `mapstructure:"default_form_rows" yaml:"default_form_rows"`
	ProductNumberQueryName string `mapstructure:"product_number_query_name" yaml:"product_number_query_name"`
}

// LookupConfig tunes the batching and waiting behavior of a lookup run.
type LookupConfig struct {
	MaxItems       int           `mapstructure:"max_items" yaml:"max_items"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	OutcomeTimeout time.Duration `mapstructure:"outcome_timeout" yaml:"outcome_timeout"`
	SettleTimeout  time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BatchInterval  time.Duration `mapstructure:"batch_interval" yaml:"batch_interval"`
}

// StoreConfig configures the optional PostgreSQL result sink.
type StoreConfig struct {
	URL   string `mapstructure:"url" yaml:"-"`
	Table string `mapstructure:"table" yaml:"table"`
}

// MetricsConfig configures where run metrics are written.
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// RunConfig carries per-invocation settings from the command line.
type RunConfig struct {
	Input  string
	Output string
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "warranty-cli")
	v.SetDefault("logger.log_file", "warranty.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "")

	// -- Vendor --
	v.SetDefault("vendor.warranty_url", "https://support.hp.com/us-en/check-warranty#multiple")
	v.SetDefault("vendor.markup.cookie_accept_selector", "#onetrust-accept-btn-handler")
	v.SetDefault("vendor.markup.clear_form_selector", "#clearAllMultipleProducts")
	v.SetDefault("vendor.markup.add_row_selector", "#addMoreProducts")
	v.SetDefault("vendor.markup.submit_selector", "#FindMyProductNumbersMultiple")
	v.SetDefault("vendor.markup.serial_field_selector", "#wFormSerialNumber%d")
	v.SetDefault("vendor.markup.product_field_selector", "#wFormProductNum%d")
	v.SetDefault("vendor.markup.view_details_selector", "#viewDetails%d")
	v.SetDefault("vendor.markup.view_options_selector", "#viewOptions%d")
	v.SetDefault("vendor.markup.invalid_field_class", "errorTxtBox")
	v.SetDefault("vendor.markup.identification_failed_marker", "unable to identify")
	v.SetDefault("vendor.markup.summary_url_marker", "warrantyresult")
	v.SetDefault("vendor.markup.loading_marker", "loading-spinner")
	v.SetDefault("vendor.markup.stuck_marker", "Please refresh the page")
	v.SetDefault("vendor.markup.warranty_content_marker", "Start date")
	v.SetDefault("vendor.markup.default_form_rows", 2)
	v.SetDefault("vendor.markup.product_number_query_name", "productNumber")

	// -- Lookup --
	v.SetDefault("lookup.max_items", 15)
	v.SetDefault("lookup.load_timeout", "60s")
	v.SetDefault("lookup.outcome_timeout", "300s")
	v.SetDefault("lookup.settle_timeout", "5s")
	v.SetDefault("lookup.poll_interval", "500ms")
	v.SetDefault("lookup.batch_interval", "0s")

	// -- Store --
	v.SetDefault("store.table", "warranty_results")

	// -- Metrics --
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.textfile_path", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("store.url", "WARRANTY_STORE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the URL if Unmarshal didn't pick it up.
	if cfg.Store.URL == "" {
		cfg.Store.URL = os.Getenv("WARRANTY_STORE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Lookup.MaxItems < 3 {
		return fmt.Errorf("lookup.max_items must be at least 3")
	}
	if c.Lookup.PollInterval <= 0 {
		return fmt.Errorf("lookup.poll_interval must be a positive duration")
	}
	if c.Lookup.LoadTimeout <= 0 || c.Lookup.OutcomeTimeout <= 0 {
		return fmt.Errorf("lookup.load_timeout and lookup.outcome_timeout must be positive durations")
	}
	if c.Lookup.SettleTimeout < 0 || c.Lookup.BatchInterval < 0 {
		return fmt.Errorf("lookup.settle_timeout and lookup.batch_interval must not be negative")
	}
	if c.Vendor.WarrantyURL == "" {
		return fmt.Errorf("vendor.warranty_url is a required configuration field")
	}
	if err := c.Vendor.Markup.Validate(); err != nil {
		return fmt.Errorf("vendor.markup configuration invalid: %w", err)
	}
	return nil
}

// Validate checks that the selectors the lookup flow depends on are present.
func (m *MarkupConfig) Validate() error {
	required := map[string]string{
		"serial_field_selector":        m.SerialFieldSelector,
		"product_field_selector":       m.ProductFieldSelector,
		"submit_selector":              m.SubmitSelector,
		"view_details_selector":        m.ViewDetailsSelector,
		"view_options_selector":        m.ViewOptionsSelector,
		"identification_failed_marker": m.IdentificationFailed,
		"summary_url_marker":           m.SummaryURLMarker,
		"loading_marker":               m.LoadingMarker,
	}
	for key, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if m.DefaultFormRows < 1 {
		return fmt.Errorf("default_form_rows must be a positive integer")
	}
	return nil
}

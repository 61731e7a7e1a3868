package types

import "time"

// SupplierSettings holds the per-supplier connection and export settings
type SupplierSettings struct {
	BaseURL      string `env:"BASE_URL"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Vendor       string `env:"VENDOR"`
	HandleSource string `env:"HANDLE_SOURCE" envDefault:"title"`
}

// HasCredentials reports whether both username and password are set
func (s SupplierSettings) HasCredentials() bool {
	return s.Username != "" && s.Password != ""
}

// Config holds the configuration for the scraper
type Config struct {
	RequestDelay time.Duration `env:"REQUEST_DELAY" envDefault:"1s"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	Timeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	Headless     bool          `env:"HEADLESS" envDefault:"true"`
	UserAgent    string        `env:"USER_AGENT"`

	// Crawl caps. These are the termination guarantees of every loop in the extractor.
	MaxPages             int           `env:"MAX_PAGES" envDefault:"100"`
	MaxScrollIterations  int           `env:"MAX_SCROLL_ITERATIONS" envDefault:"100"`
	ScrollPause          time.Duration `env:"SCROLL_PAUSE" envDefault:"2s"`
	PageSettle           time.Duration `env:"PAGE_SETTLE" envDefault:"1s"`
	MaxSessionRecoveries int           `env:"MAX_SESSION_RECOVERIES" envDefault:"3"`
	SiteCheckAttempts    int           `env:"SITE_CHECK_ATTEMPTS" envDefault:"3"`
	SiteCheckInterval    time.Duration `env:"SITE_CHECK_INTERVAL" envDefault:"30s"`

	ErrorMessageLimit int           `env:"ERROR_MESSAGE_LIMIT" envDefault:"500"`
	OutputDir         string        `env:"OUTPUT_DIR" envDefault:"outputs"`
	DatabasePath      string        `env:"DATABASE_PATH" envDefault:"data/catalog.db"`
	RunLeaseTTL       time.Duration `env:"RUN_LEASE_TTL" envDefault:"6h"`

	// API server
	APIPort           string `env:"API_PORT" envDefault:"8080"`
	ReprocessSchedule string `env:"REPROCESS_SCHEDULE"`

	Garnier SupplierSettings `envPrefix:"GARNIER_"`
	Artiga  SupplierSettings `envPrefix:"ARTIGA_"`
	Cristel SupplierSettings `envPrefix:"CRISTEL_"`
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RequestDelay:         1 * time.Second,
		MaxRetries:           3,
		Timeout:              30 * time.Second,
		Headless:             true,
		UserAgent:            defaultUserAgent,
		MaxPages:             100,
		MaxScrollIterations:  100,
		ScrollPause:          2 * time.Second,
		PageSettle:           1 * time.Second,
		MaxSessionRecoveries: 3,
		SiteCheckAttempts:    3,
		SiteCheckInterval:    30 * time.Second,
		ErrorMessageLimit:    500,
		OutputDir:            "outputs",
		DatabasePath:         "data/catalog.db",
		RunLeaseTTL:          6 * time.Hour,
		APIPort:              "8080",
		Garnier:              SupplierSettings{HandleSource: "title"},
		Artiga:               SupplierSettings{HandleSource: "title"},
		Cristel:              SupplierSettings{HandleSource: "title"},
	}
}

// DefaultUserAgent is used when USER_AGENT is empty
func DefaultUserAgent() string {
	return defaultUserAgent
}

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

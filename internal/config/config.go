// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ErrInvalidEnvironment is returned when the selected environment has no entry
// in target.environments.
var ErrInvalidEnvironment = errors.New("invalid environment")

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Target() TargetConfig
	Auth() AuthConfig
	Crawl() CrawlConfig
	Check() CheckConfig
	Report() ReportConfig
}

// Config holds the entire application configuration.
// It uses private fields to enforce access through the Interface's getter methods.
type Config struct {
	logger   LoggerConfig
	database DatabaseConfig
	browser  BrowserConfig
	target   TargetConfig
	auth     AuthConfig
	crawl    CrawlConfig
	check    CheckConfig
	report   ReportConfig
}

// settings is the decoding target for viper. mapstructure cannot populate
// unexported fields, so values land here first and are copied into Config.
type settings struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Target   TargetConfig   `mapstructure:"target" yaml:"target"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Crawl    CrawlConfig    `mapstructure:"crawl" yaml:"crawl"`
	Check    CheckConfig    `mapstructure:"check" yaml:"check"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
}

// --- Interface Method Implementations ---

func (c *Config) Logger() LoggerConfig     { return c.logger }
func (c *Config) Database() DatabaseConfig { return c.database }
func (c *Config) Browser() BrowserConfig   { return c.browser }
func (c *Config) Target() TargetConfig     { return c.target }
func (c *Config) Auth() AuthConfig         { return c.auth }
func (c *Config) Crawl() CrawlConfig       { return c.crawl }
func (c *Config) Check() CheckConfig       { return c.check }
func (c *Config) Report() ReportConfig     { return c.report }

// LoggerConfig holds settings for the zap logger and its rotating file sink.
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

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig enables the optional results store when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig controls how the Chromium process is launched and how long
// page operations may block.
type BrowserConfig struct {
	Name            string        `mapstructure:"name" yaml:"name"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath        string        `mapstructure:"exec_path" yaml:"exec_path"`
	DisableGPU      bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	Debug           bool          `mapstructure:"debug" yaml:"debug"`
}

// Environment describes one deployment of the platform.
type Environment struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	LabID     string `mapstructure:"lab_id" yaml:"lab_id"`
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
}

// TargetConfig selects the environment under test.
type TargetConfig struct {
	Env          string                 `mapstructure:"env" yaml:"env"`
	EnvURL       string                 `mapstructure:"env_url" yaml:"env_url"`
	Environments map[string]Environment `mapstructure:"environments" yaml:"environments"`
}

// Target is a fully resolved environment.
type Target struct {
	Name      string
	BaseURL   string
	LabID     string
	ProjectID string
}

// Resolve picks the selected environment and applies the env_url override.
func (t TargetConfig) Resolve() (Target, error) {
	name := strings.ToLower(strings.TrimSpace(t.Env))
	env, ok := t.Environments[name]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q. Choose 'staging' or 'production'", ErrInvalidEnvironment, t.Env)
	}

	base := env.BaseURL
	if t.EnvURL != "" {
		base = t.EnvURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Target{}, fmt.Errorf("base URL for environment %q must be absolute, got %q", name, base)
	}

	upper := strings.ToUpper(name)
	if env.LabID == "" {
		return Target{}, fmt.Errorf("lab ID for environment %q is not set (LAB_ID_%s)", name, upper)
	}
	if env.ProjectID == "" {
		return Target{}, fmt.Errorf("project ID for environment %q is not set (PROJECT_ID_%s)", name, upper)
	}

	return Target{
		Name:      name,
		BaseURL:   strings.TrimRight(base, "/"),
		LabID:     env.LabID,
		ProjectID: env.ProjectID,
	}, nil
}

// AuthConfig holds credentials and the URL markers that drive the login
// state machine.
type AuthConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	// LoginFormMarker appears in the identity provider's URL.
	LoginFormMarker string `mapstructure:"login_form_marker" yaml:"login_form_marker"`
	// SuccessMarker appears in the URL once the application has accepted the login.
	SuccessMarker string `mapstructure:"success_marker" yaml:"success_marker"`
	// SessionLostMarker in the URL of an application page means the session expired.
	SessionLostMarker string `mapstructure:"session_lost_marker" yaml:"session_lost_marker"`
	// LoggedInMarker is checked by the home page to decide if a session exists.
	LoggedInMarker  string        `mapstructure:"logged_in_marker" yaml:"logged_in_marker"`
	RedirectTimeout time.Duration `mapstructure:"redirect_timeout" yaml:"redirect_timeout"`
	LoginTimeout    time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
}

// HasCredentials reports whether both username and password are present.
func (a AuthConfig) HasCredentials() bool {
	return a.Username != "" && a.Password != ""
}

// CrawlConfig tunes how pages are visited before links are scraped.
type CrawlConfig struct {
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	BodyTimeout         time.Duration `mapstructure:"body_timeout" yaml:"body_timeout"`
	SessionRecheckDelay time.Duration `mapstructure:"session_recheck_delay" yaml:"session_recheck_delay"`
	LandingRetries      int           `mapstructure:"landing_retries" yaml:"landing_retries"`
	LandingRetryDelay   time.Duration `mapstructure:"landing_retry_delay" yaml:"landing_retry_delay"`
	RowKeys             bool          `mapstructure:"row_keys" yaml:"row_keys"`
	OnClick             bool          `mapstructure:"onclick" yaml:"onclick"`
}

// CheckConfig controls HTTP validation of discovered links.
type CheckConfig struct {
	Method          string        `mapstructure:"method" yaml:"method"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	Accept          string        `mapstructure:"accept" yaml:"accept"`
	AcceptLanguage  string        `mapstructure:"accept_language" yaml:"accept_language"`
	Delay           time.Duration `mapstructure:"delay" yaml:"delay"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRedirects    int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	SkipExternal    bool          `mapstructure:"skip_external" yaml:"skip_external"`
	FailOnBroken    bool          `mapstructure:"fail_on_broken" yaml:"fail_on_broken"`
}

// ReportConfig decides where run artifacts are written.
type ReportConfig struct {
	Dir        string   `mapstructure:"dir" yaml:"dir"`
	LinkLogDir string   `mapstructure:"link_log_dir" yaml:"link_log_dir"`
	BrokenLog  string   `mapstructure:"broken_log" yaml:"broken_log"`
	WorkingLog string   `mapstructure:"working_log" yaml:"working_log"`
	Formats    []string `mapstructure:"formats" yaml:"formats"`
}

// DefaultUserAgent mimics a desktop Chrome so that sites serving bots
// differently still answer with their real status codes.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NewDefaultConfig creates a Config populated with the defaults from SetDefaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var s settings
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&s)
	return s.toConfig()
}

// SetDefaults registers every default with the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "obi-linkcheck")
	v.SetDefault("logger.log_file", "reports/report.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Browser --
	v.SetDefault("browser.name", "chrome")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.page_load_timeout", "60s")
	v.SetDefault("browser.wait_timeout", "20s")
	v.SetDefault("browser.debug", false)

	// -- Target --
	v.SetDefault("target.env", "staging")
	v.SetDefault("target.env_url", "")
	v.SetDefault("target.environments.staging.base_url", "https://staging.openbraininstitute.org/app/virtual-lab")
	v.SetDefault("target.environments.production.base_url", "https://openbraininstitute.org/app/virtual-lab")

	// -- Auth --
	v.SetDefault("auth.login_form_marker", "openid-connect")
	v.SetDefault("auth.success_marker", "app/virtual-lab")
	v.SetDefault("auth.session_lost_marker", "login")
	v.SetDefault("auth.logged_in_marker", "virtual-lab")
	v.SetDefault("auth.redirect_timeout", "30s")
	v.SetDefault("auth.login_timeout", "30s")

	// -- Crawl --
	v.SetDefault("crawl.settle_delay", "2s")
	v.SetDefault("crawl.body_timeout", "10s")
	v.SetDefault("crawl.session_recheck_delay", "2s")
	v.SetDefault("crawl.landing_retries", 3)
	v.SetDefault("crawl.landing_retry_delay", "5s")
	v.SetDefault("crawl.row_keys", true)
	v.SetDefault("crawl.onclick", true)

	// -- Check --
	v.SetDefault("check.method", "GET")
	v.SetDefault("check.timeout", "5s")
	v.SetDefault("check.user_agent", DefaultUserAgent)
	v.SetDefault("check.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	v.SetDefault("check.accept_language", "en-US,en;q=0.9")
	v.SetDefault("check.delay", "0s")
	v.SetDefault("check.concurrency", 1)
	v.SetDefault("check.max_redirects", 10)
	v.SetDefault("check.ignore_tls_errors", false)
	v.SetDefault("check.skip_external", false)
	v.SetDefault("check.fail_on_broken", false)

	// -- Report --
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.link_log_dir", ".")
	v.SetDefault("report.broken_log", "broken_links.log")
	v.SetDefault("report.working_log", "working_links.log")
	v.SetDefault("report.formats", []string{"json", "junit"})
}

// BindEnv wires the well known environment variables that do not follow the
// OBI_LINKCHECK_ prefix convention.
func BindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"auth.username":                             "OBI_USERNAME",
		"auth.password":                             "OBI_PASSWORD",
		"target.environments.staging.lab_id":        "LAB_ID_STAGING",
		"target.environments.staging.project_id":    "PROJECT_ID_STAGING",
		"target.environments.production.lab_id":     "LAB_ID_PRODUCTION",
		"target.environments.production.project_id": "PROJECT_ID_PRODUCTION",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// NewConfigFromViper builds and validates a Config from the given viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	if err := BindEnv(v); err != nil {
		return nil, err
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg := s.toConfig()
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (s settings) toConfig() *Config {
	cfg := &Config{
		logger:   s.Logger,
		database: s.Database,
		browser:  s.Browser,
		target:   s.Target,
		auth:     s.Auth,
		crawl:    s.Crawl,
		check:    s.Check,
		report:   s.Report,
	}
	// Environment names are matched case-insensitively.
	envs := make(map[string]Environment, len(s.Target.Environments))
	for name, env := range s.Target.Environments {
		envs[strings.ToLower(name)] = env
	}
	cfg.target.Environments = envs
	return cfg
}

func (c *Config) expandPaths() error {
	paths := []*string{&c.logger.LogFile, &c.browser.ExecPath, &c.report.Dir, &c.report.LinkLogDir}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// Target and credentials are checked by the commands that need them.
func (c *Config) Validate() error {
	if c.browser.Name == "" {
		return fmt.Errorf("browser.name is required")
	}
	if c.browser.PageLoadTimeout <= 0 || c.browser.WaitTimeout <= 0 {
		return fmt.Errorf("browser.page_load_timeout and browser.wait_timeout must be positive")
	}
	if c.browser.WindowWidth <= 0 || c.browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window dimensions must be positive")
	}
	if err := c.check.Validate(); err != nil {
		return fmt.Errorf("check configuration invalid: %w", err)
	}
	if err := c.report.Validate(); err != nil {
		return fmt.Errorf("report configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the link validator settings.
func (c *CheckConfig) Validate() error {
	switch strings.ToUpper(c.Method) {
	case "GET", "HEAD":
	default:
		return fmt.Errorf("method must be GET or HEAD, got %q", c.Method)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must not be negative")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must not be negative")
	}
	return nil
}

// Validate checks the report settings.
func (r *ReportConfig) Validate() error {
	if r.BrokenLog == "" || r.WorkingLog == "" {
		return fmt.Errorf("broken_log and working_log are required")
	}
	for _, f := range r.Formats {
		switch f {
		case "json", "junit":
		default:
			return fmt.Errorf("unsupported report format: %s", f)
		}
	}
	return nil
}

// File: internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/config"
)

// ErrUnsupportedBrowser is returned for browsers that cannot be driven over CDP.
var ErrUnsupportedBrowser = errors.New("unsupported browser")

// Manager owns the browser process and the tabs opened on it.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager prepares an exec allocator. The browser process itself starts
// with the first session.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if err := checkSupported(cfg); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*Session),
	}
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)

	m.logger.Info("Browser manager initialized",
		zap.String("browser", cfg.Name),
		zap.Bool("headless", cfg.Headless),
		zap.String("exec_path", cfg.ExecPath),
	)
	return m, nil
}

func checkSupported(cfg config.BrowserConfig) error {
	switch strings.ToLower(cfg.Name) {
	case "chrome", "chromium":
		return nil
	case "edge":
		if cfg.ExecPath == "" {
			return fmt.Errorf("%w: edge requires browser.exec_path", ErrUnsupportedBrowser)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q (only Chromium-based browsers can be driven)", ErrUnsupportedBrowser, cfg.Name)
	}
}

// allocatorFlags lists the command line switches passed to the browser.
// A false value removes a default switch.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":        cfg.Headless,
		"hide-scrollbars": cfg.Headless,
		"mute-audio":      true,
		"window-size":     fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight),
		"disable-gpu":     cfg.DisableGPU,
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for cfg on top of the
// chromedp defaults.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewSession opens a new tab and waits until it is attached.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	contextOpts := []chromedp.ContextOption{chromedp.WithErrorf(m.logger.Sugar().Debugf)}
	if m.cfg.Debug {
		contextOpts = append(contextOpts, chromedp.WithLogf(m.logger.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(m.allocatorCtx, contextOpts...)

	// Start the browser (on first use) and attach to the tab, bounded by the caller's context.
	startCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	id := uuid.New().String()
	s := newSession(id, tabCtx, tabCancel, m.cfg, m.logger)
	s.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Debug("Browser session created", zap.String("session_id", id))
	return s, nil
}

// Shutdown closes every open session and stops the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager")

	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range open {
		closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := s.Close(closeCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
	return errors.Join(errs...)
}

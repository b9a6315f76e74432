package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
)

// ErrTimeout is returned when a bounded wait expires.
var ErrTimeout = errors.New("timed out")

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultWaitTimeout  = 20 * time.Second
)

// Condition is polled by WaitForCondition until it reports true.
type Condition func(ctx context.Context) (bool, error)

// BasePage holds the operations shared by every page object.
type BasePage struct {
	driver       Driver
	baseURL      string
	logger       *zap.Logger
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewBasePage binds a driver to the environment base URL.
func NewBasePage(driver Driver, baseURL string, waitTimeout time.Duration, logger *zap.Logger) *BasePage {
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	return &BasePage{
		driver:       driver,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger,
		waitTimeout:  waitTimeout,
		pollInterval: defaultPollInterval,
	}
}

// BaseURL returns the environment base URL.
func (p *BasePage) BaseURL() string { return p.baseURL }

// resolve turns a path into a URL under the base URL. Absolute URLs pass
// through unchanged.
func (p *BasePage) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" {
		return p.baseURL
	}
	return p.baseURL + "/" + strings.TrimLeft(path, "/")
}

// GoToPage navigates to path and waits for the document to be ready.
func (p *BasePage) GoToPage(ctx context.Context, path string) error {
	target := p.resolve(path)
	if err := p.driver.Navigate(ctx, target); err != nil {
		return asTimeout(err, "navigating to "+target)
	}
	return p.WaitForPageReady(ctx, p.waitTimeout)
}

// FindElement waits until loc is present in the DOM.
func (p *BasePage) FindElement(ctx context.Context, loc locators.Locator, timeout time.Duration) error {
	ctx, cancel := p.bounded(ctx, timeout)
	defer cancel()
	if err := p.driver.WaitPresent(ctx, loc); err != nil {
		return asTimeout(err, "waiting for "+loc.String())
	}
	return nil
}

// WaitUntilVisible waits until loc is visible.
func (p *BasePage) WaitUntilVisible(ctx context.Context, loc locators.Locator, timeout time.Duration) error {
	ctx, cancel := p.bounded(ctx, timeout)
	defer cancel()
	if err := p.driver.WaitVisible(ctx, loc); err != nil {
		return asTimeout(err, "waiting for "+loc.String()+" to be visible")
	}
	return nil
}

// Click waits for loc to become clickable and clicks it.
func (p *BasePage) Click(ctx context.Context, loc locators.Locator, timeout time.Duration) error {
	ctx, cancel := p.bounded(ctx, timeout)
	defer cancel()
	if err := p.driver.Click(ctx, loc); err != nil {
		return asTimeout(err, "clicking "+loc.String())
	}
	return nil
}

// WaitForCondition polls cond until it reports true or timeout expires.
// Errors from cond are logged and polling continues.
func (p *BasePage) WaitForCondition(ctx context.Context, cond Condition, timeout time.Duration, message string) error {
	ctx, cancel := p.bounded(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				if lastErr != nil {
					return fmt.Errorf("%w: %s (last error: %v)", ErrTimeout, message, lastErr)
				}
				return fmt.Errorf("%w: %s", ErrTimeout, message)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForURLContains waits until the current URL contains marker.
func (p *BasePage) WaitForURLContains(ctx context.Context, marker string, timeout time.Duration) error {
	return p.WaitForCondition(ctx, func(ctx context.Context) (bool, error) {
		current, err := p.driver.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(current, marker), nil
	}, timeout, fmt.Sprintf("url to contain %q", marker))
}

// WaitForPageReady waits for document.readyState to be "complete".
func (p *BasePage) WaitForPageReady(ctx context.Context, timeout time.Duration) error {
	return p.WaitForCondition(ctx, func(ctx context.Context) (bool, error) {
		var state string
		if err := p.driver.ExecuteScript(ctx, "document.readyState", &state); err != nil {
			return false, err
		}
		return state == "complete", nil
	}, timeout, "document to be ready")
}

// GetAllLinks returns the resolved href of every anchor on the page.
func (p *BasePage) GetAllLinks(ctx context.Context) ([]string, error) {
	hrefs, err := p.driver.AnchorHrefs(ctx)
	if err != nil {
		return nil, err
	}
	links := hrefs[:0]
	for _, h := range hrefs {
		if h != "" {
			links = append(links, h)
		}
	}
	return links, nil
}

// CurrentURL returns the browser location.
func (p *BasePage) CurrentURL(ctx context.Context) (string, error) {
	return p.driver.CurrentURL(ctx)
}

// PageSource returns the rendered markup.
func (p *BasePage) PageSource(ctx context.Context) (string, error) {
	return p.driver.PageSource(ctx)
}

// urlContains reads the current URL and reports whether it contains marker.
// A read failure counts as false.
func (p *BasePage) urlContains(ctx context.Context, marker string) bool {
	current, err := p.driver.CurrentURL(ctx)
	if err != nil {
		p.logger.Debug("Could not read current url", zap.Error(err))
		return false
	}
	return strings.Contains(current, marker)
}

func (p *BasePage) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = p.waitTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// sleep pauses for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// asTimeout marks deadline errors with ErrTimeout.
func asTimeout(err error, what string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

package pages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
)

// LandingPage is the public entry page of the platform.
type LandingPage struct {
	*BasePage
	retries     int
	retryDelay  time.Duration
	loadTimeout time.Duration
}

// NewLandingPage returns a landing page that retries a failed load retries
// times, pausing retryDelay between attempts.
func NewLandingPage(base *BasePage, retries int, retryDelay, loadTimeout time.Duration) *LandingPage {
	if retries < 1 {
		retries = 1
	}
	return &LandingPage{
		BasePage:    base,
		retries:     retries,
		retryDelay:  retryDelay,
		loadTimeout: loadTimeout,
	}
}

// GoToLandingPage loads the base URL, retrying on timeouts.
func (p *LandingPage) GoToLandingPage(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		err := p.load(ctx)
		if err == nil {
			p.logger.Info("Landing page loaded", zap.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, ErrTimeout) {
			break
		}

		p.logger.Warn("Landing page load failed",
			zap.Int("attempt", attempt),
			zap.Int("retries", p.retries),
			zap.Duration("retry_in", p.retryDelay),
			zap.Error(err),
		)
		if attempt < p.retries {
			if err := sleep(ctx, p.retryDelay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("failed to load landing page after %d attempts: %w", p.retries, lastErr)
}

func (p *LandingPage) load(ctx context.Context) error {
	if err := p.driver.Navigate(ctx, p.baseURL); err != nil {
		return asTimeout(err, "navigating to "+p.baseURL)
	}
	return p.WaitForPageReady(ctx, p.loadTimeout)
}

// ClickGoToLab clicks the "Go to Lab" menu button.
func (p *LandingPage) ClickGoToLab(ctx context.Context) error {
	if err := p.Click(ctx, locators.Landing.GoToLab, 0); err != nil {
		p.logger.Error("Failed to click 'Go to Lab'", zap.Error(err))
		return err
	}
	p.logger.Info("Clicked 'Go to Lab'")
	return nil
}

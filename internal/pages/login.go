package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/config"
	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
)

var (
	// ErrLoginFailed means the identity provider did not hand the browser
	// back to the application.
	ErrLoginFailed = errors.New("login failed")
	// ErrMissingCredentials means OBI_USERNAME or OBI_PASSWORD is unset.
	ErrMissingCredentials = errors.New("username or password is missing (set OBI_USERNAME and OBI_PASSWORD)")
)

// LoginState tracks progress through the login flow.
type LoginState int

const (
	LoggedOut LoginState = iota
	OnLoginForm
	Submitted
	LoggedIn
	LoginFailed
)

func (s LoginState) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case OnLoginForm:
		return "on_login_form"
	case Submitted:
		return "submitted"
	case LoggedIn:
		return "logged_in"
	case LoginFailed:
		return "login_failed"
	default:
		return fmt.Sprintf("LoginState(%d)", int(s))
	}
}

// LoginPage drives the identity provider's login form.
type LoginPage struct {
	*BasePage
	landing *LandingPage
	auth    config.AuthConfig
	state   LoginState
}

// NewLoginPage returns a login page starting in LoggedOut.
func NewLoginPage(base *BasePage, landing *LandingPage, auth config.AuthConfig) *LoginPage {
	return &LoginPage{
		BasePage: base,
		landing:  landing,
		auth:     auth,
		state:    LoggedOut,
	}
}

// State returns the current login state.
func (p *LoginPage) State() LoginState { return p.state }

func (p *LoginPage) transition(to LoginState) {
	p.logger.Debug("Login state change", zap.Stringer("from", p.state), zap.Stringer("to", to))
	p.state = to
}

// NavigateToHomepage clears cookies and opens the landing page.
func (p *LoginPage) NavigateToHomepage(ctx context.Context) error {
	if err := p.driver.DeleteAllCookies(ctx); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	if err := p.landing.GoToLandingPage(ctx); err != nil {
		return err
	}
	p.transition(LoggedOut)

	if current, err := p.CurrentURL(ctx); err == nil {
		p.logger.Info("Starting URL", zap.String("url", current))
	}
	return nil
}

// OpenLoginForm clicks the login affordance unless the browser is already on
// the identity provider, then waits for its URL.
func (p *LoginPage) OpenLoginForm(ctx context.Context) error {
	if !p.urlContains(ctx, p.auth.LoginFormMarker) {
		if err := p.Click(ctx, locators.Login.LoginButton, 0); err != nil {
			return err
		}
	}
	if err := p.WaitForURLContains(ctx, p.auth.LoginFormMarker, p.auth.RedirectTimeout); err != nil {
		return fmt.Errorf("identity provider did not open: %w", err)
	}
	p.transition(OnLoginForm)
	return nil
}

// MakeFormVisible un-hides the login form container if it is hidden.
// Failures are logged and ignored.
func (p *LoginPage) MakeFormVisible(ctx context.Context) {
	exists, err := p.driver.Exists(ctx, locators.Login.FormContainer)
	if err != nil {
		p.logger.Debug("Could not look for hidden login form", zap.Error(err))
		return
	}
	if !exists {
		return
	}
	if err := p.driver.SetAttribute(ctx, locators.Login.FormContainer, "style", "display: block;"); err != nil {
		p.logger.Warn("Could not make login form visible", zap.Error(err))
		return
	}
	p.logger.Info("Made login form visible")
}

// Login runs the full flow from a clean browser to an authenticated session.
func (p *LoginPage) Login(ctx context.Context) error {
	if !p.auth.HasCredentials() {
		p.logger.Error("Missing credentials")
		return ErrMissingCredentials
	}
	p.logger.Info("Starting login process")

	if err := p.NavigateToHomepage(ctx); err != nil {
		return err
	}
	if err := p.OpenLoginForm(ctx); err != nil {
		return err
	}
	p.MakeFormVisible(ctx)

	if err := p.FindElement(ctx, locators.Login.Username, 0); err != nil {
		return err
	}
	if err := p.driver.SendKeys(ctx, locators.Login.Username, p.auth.Username); err != nil {
		return err
	}
	if err := p.FindElement(ctx, locators.Login.Password, 0); err != nil {
		return err
	}
	if err := p.driver.SendKeys(ctx, locators.Login.Password, p.auth.Password+kb.Enter); err != nil {
		return err
	}
	p.transition(Submitted)

	if err := p.WaitForLoginComplete(ctx); err != nil {
		return err
	}
	p.logger.Info("Successfully logged in")
	return nil
}

// WaitForLoginComplete waits for the success marker in the URL. Ending up
// anywhere that still looks like the login page is fatal.
func (p *LoginPage) WaitForLoginComplete(ctx context.Context) error {
	waitErr := p.WaitForURLContains(ctx, p.auth.SuccessMarker, p.auth.LoginTimeout)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	current, err := p.CurrentURL(ctx)
	if err != nil {
		p.transition(LoginFailed)
		return fmt.Errorf("%w: could not read url after submit: %w", ErrLoginFailed, err)
	}
	if waitErr != nil {
		p.transition(LoginFailed)
		p.logger.Error("Timeout waiting for login", zap.String("current_url", current))
		return fmt.Errorf("%w: still at %s: %w", ErrLoginFailed, current, waitErr)
	}
	if p.auth.SessionLostMarker != "" && strings.Contains(current, p.auth.SessionLostMarker) {
		p.transition(LoginFailed)
		return fmt.Errorf("%w: still on login page %s", ErrLoginFailed, current)
	}

	p.transition(LoggedIn)
	return nil
}

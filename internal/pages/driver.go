// Package pages implements the page objects that drive the application
// through a browser session.
package pages

import (
	"context"

	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
)

// Driver is the set of browser capabilities the page objects need.
// browser.Session implements it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	WaitPresent(ctx context.Context, loc locators.Locator) error
	WaitVisible(ctx context.Context, loc locators.Locator) error
	Exists(ctx context.Context, loc locators.Locator) (bool, error)
	Click(ctx context.Context, loc locators.Locator) error
	SendKeys(ctx context.Context, loc locators.Locator, text string) error
	SetAttribute(ctx context.Context, loc locators.Locator, name, value string) error
	ExecuteScript(ctx context.Context, expression string, res interface{}) error
	AnchorHrefs(ctx context.Context) ([]string, error)
	DeleteAllCookies(ctx context.Context) error
	Close(ctx context.Context) error
}

// Package locators holds the element selectors used by the page objects.
// Selectors are copied from the application markup and change only when the
// frontend does.
package locators

import (
	"fmt"

	"github.com/chromedp/chromedp"
)

// Strategy names how a Selector is interpreted.
type Strategy string

const (
	XPath Strategy = "xpath"
	CSS   Strategy = "css"
	ID    Strategy = "id"
	Tag   Strategy = "tag"
)

// Locator is a (strategy, selector) pair.
type Locator struct {
	Strategy Strategy
	Selector string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Selector)
}

// QueryOptions translates the strategy to chromedp query options.
func (l Locator) QueryOptions() []chromedp.QueryOption {
	switch l.Strategy {
	case XPath:
		return []chromedp.QueryOption{chromedp.BySearch}
	case ID:
		return []chromedp.QueryOption{chromedp.ByID}
	default:
		return []chromedp.QueryOption{chromedp.ByQuery}
	}
}

// Body matches the document body.
var Body = Locator{Tag, "body"}

// Landing page selectors.
var Landing = struct {
	BannerTitle Locator
	BigImage1   Locator
	BigImage2   Locator
	BigImage3   Locator
	GoToLab     Locator
}{
	BannerTitle: Locator{XPath, "//h1[contains(text(),'Create your Virtual Lab to build digital brain mod')]"},
	BigImage1:   Locator{XPath, "(//div[starts-with(@class,'SanityContentPreview_vignette')])[1]"},
	BigImage2:   Locator{XPath, "(//div[starts-with(@class,'SanityContentPreview_vignette')])[2]"},
	BigImage3:   Locator{XPath, "(//div[starts-with(@class,'SanityContentPreview_vignette')])[3]"},
	GoToLab:     Locator{XPath, "//*[contains(@class, 'Menu_loginButton__')]"},
}

// Login page selectors, covering both the application's login affordance
// and the identity provider's form.
var Login = struct {
	FormContainer Locator
	LoginForm     Locator
	LoginButton   Locator
	Logout        Locator
	SignIn        Locator
	Username      Locator
	Password      Locator
	Submit        Locator
}{
	FormContainer: Locator{CSS, "div.form-container.display-none"},
	LoginForm:     Locator{XPath, "//form[@class='login-form']"},
	LoginButton:   Locator{XPath, "//a[contains(.,'Log in')]"},
	Logout:        Locator{XPath, "//button[@type='button' and text()='Log out']"},
	SignIn:        Locator{XPath, "//input[@type='submit']"},
	Username:      Locator{XPath, "//fieldset[@class='login-form-group']/input[@id='username']"},
	Password:      Locator{XPath, "//fieldset[@class='login-form-group']/input[@id='password']"},
	Submit:        Locator{CSS, ".login-form-submit"},
}

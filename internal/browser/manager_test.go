// File: internal/browser/manager_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openbraininstitute/obi-linkcheck/internal/config"
	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
)

func testBrowserConfig() config.BrowserConfig {
	cfg := config.NewDefaultConfig().Browser()
	cfg.Headless = true
	cfg.PageLoadTimeout = 20 * time.Second
	cfg.WaitTimeout = 5 * time.Second
	return cfg
}

func TestCheckSupported(t *testing.T) {
	tests := []struct {
		name     string
		execPath string
		wantErr  bool
	}{
		{name: "chrome"},
		{name: "Chromium"},
		{name: "edge", wantErr: true},
		{name: "edge", execPath: "/opt/microsoft/msedge/msedge"},
		{name: "firefox", wantErr: true},
		{name: "safari", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name+tt.execPath, func(t *testing.T) {
			err := checkSupported(config.BrowserConfig{Name: tt.name, ExecPath: tt.execPath})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedBrowser)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewManager_RejectsFirefox(t *testing.T) {
	cfg := testBrowserConfig()
	cfg.Name = "firefox"
	_, err := NewManager(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrUnsupportedBrowser)
}

func TestAllocatorFlags(t *testing.T) {
	t.Run("Headless", func(t *testing.T) {
		flags := allocatorFlags(testBrowserConfig())
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, "1920,1080", flags["window-size"])
		assert.NotContains(t, flags, "ignore-certificate-errors")
	})

	t.Run("HeadedRemovesDefaultSwitch", func(t *testing.T) {
		cfg := testBrowserConfig()
		cfg.Headless = false
		flags := allocatorFlags(cfg)
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, false, flags["hide-scrollbars"])
	})

	t.Run("TLSAndCustomArgs", func(t *testing.T) {
		cfg := testBrowserConfig()
		cfg.IgnoreTLSErrors = true
		cfg.DisableGPU = true
		cfg.Args = []string{"--lang=en-US", "--no-sandbox", "--"}
		flags := allocatorFlags(cfg)
		assert.Equal(t, true, flags["ignore-certificate-errors"])
		assert.Equal(t, true, flags["disable-gpu"])
		assert.Equal(t, "en-US", flags["lang"])
		assert.Equal(t, true, flags["no-sandbox"])
		assert.NotContains(t, flags, "")
	})
}

func TestAllocatorOptions(t *testing.T) {
	cfg := testBrowserConfig()
	base := len(chromedp.DefaultExecAllocatorOptions)

	opts := AllocatorOptions(cfg)
	assert.Len(t, opts, base+len(allocatorFlags(cfg)))

	cfg.ExecPath = "/usr/bin/chromium"
	assert.Len(t, AllocatorOptions(cfg), base+len(allocatorFlags(cfg))+1)
}

// findChrome skips the test when no Chromium-family browser is installed.
func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or Chromium binary found in PATH")
	return ""
}

func TestManager_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	cfg := testBrowserConfig()
	cfg.ExecPath = findChrome(t)
	cfg.Args = []string{"no-sandbox"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<a href="/about">About</a>
			<a href="https://x.org/y">X</a>
			<div id="hidden" style="display:none">hidden</div>
		</body></html>`)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mgr, err := NewManager(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, mgr.Shutdown(context.Background())) }()

	s, err := mgr.NewSession(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Navigate(ctx, server.URL))

	current, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Contains(t, current, server.URL)

	hrefs, err := s.AnchorHrefs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{server.URL + "/about", "https://x.org/y"}, hrefs)

	require.NoError(t, s.WaitVisible(ctx, locators.Body))

	exists, err := s.Exists(ctx, locators.Locator{Strategy: locators.ID, Selector: "missing"})
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SetAttribute(ctx, locators.Locator{Strategy: locators.ID, Selector: "hidden"}, "style", "display: block;"))
	require.NoError(t, s.WaitVisible(ctx, locators.Locator{Strategy: locators.XPath, Selector: "//div[@id='hidden']"}))

	source, err := s.PageSource(ctx)
	require.NoError(t, err)
	assert.Contains(t, source, `href="/about"`)

	require.NoError(t, s.DeleteAllCookies(ctx))
	require.NoError(t, s.Close(ctx))

	mgr.mu.Lock()
	assert.Empty(t, mgr.sessions, "closed sessions are forgotten")
	mgr.mu.Unlock()
}

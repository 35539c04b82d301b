// Package browser drives portal pages either through a headless Chromium
// (chromedp) or through a plain HTTP client that renders no JavaScript.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/config"
	"github.com/sells-group/philgeps-cli/internal/stealth"
)

const (
	DriverChromedp = "chromedp"
	DriverHTTP     = "http"
)

// ErrUnsupported is returned by Launch for an unknown driver name.
var ErrUnsupported = eris.New("browser: unsupported driver")

// Browser is one running browser session. Pages opened from it share cookies.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab. A Page is not safe for concurrent use; each worker
// owns exactly one.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	Content(ctx context.Context) (string, error)
	Click(ctx context.Context, sel Selector) error
	WaitFor(ctx context.Context, sel Selector, timeout time.Duration) error
	Scroll(ctx context.Context, dy int) error
	Close() error
}

// Selector picks the first element matching CSS whose text contains Text and
// whose href contains Href. Empty filters match anything.
type Selector struct {
	CSS  string
	Text string
	Href string
}

func (s Selector) String() string {
	out := s.CSS
	if s.Text != "" {
		out += fmt.Sprintf(" text~%q", s.Text)
	}
	if s.Href != "" {
		out += fmt.Sprintf(" href~%q", s.Href)
	}
	return out
}

// LaunchOptions configures Launch.
type LaunchOptions struct {
	Driver      string
	Headless    bool
	ExecPath    string
	UserDataDir string
	Persistent  bool
	Timeout     time.Duration
	Identity    stealth.Identity

	// RequestsPerSecond bounds the HTTP driver's request rate. Zero means 1.
	RequestsPerSecond float64
}

// OptionsFromConfig maps the browser config section onto LaunchOptions.
func OptionsFromConfig(bc config.BrowserConfig, id stealth.Identity) LaunchOptions {
	return LaunchOptions{
		Driver:      bc.Driver,
		Headless:    bc.Headless,
		ExecPath:    bc.ExecPath,
		UserDataDir: bc.UserDataDir,
		Persistent:  bc.Persistent,
		Timeout:     time.Duration(bc.TimeoutMs) * time.Millisecond,
		Identity:    id,
	}
}

// Launch starts a browser for the configured driver.
func Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	switch opts.Driver {
	case "", DriverChromedp:
		return launchChromedp(ctx, opts)
	case DriverHTTP:
		return NewHTTPBrowser(opts)
	default:
		return nil, eris.Wrapf(ErrUnsupported, "driver %q", opts.Driver)
	}
}

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/philgeps-cli/internal/stealth"
)

const waitPollInterval = 250 * time.Millisecond

type chromeBrowser struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	identity      stealth.Identity

	mu            sync.Mutex
	firstTabTaken bool
	log           *zap.Logger
}

// allocatorOptions turns LaunchOptions into Chromium flags on top of the
// chromedp defaults.
func allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, arg := range stealth.LaunchArgs() {
		name, value := splitFlag(arg)
		out = append(out, chromedp.Flag(name, value))
	}
	vp := opts.Identity.Viewport
	out = append(out,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(opts.Identity.UserAgent),
	)
	if vp.Width > 0 && vp.Height > 0 {
		out = append(out, chromedp.WindowSize(vp.Width, vp.Height))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.Persistent && opts.UserDataDir != "" {
		out = append(out, chromedp.UserDataDir(opts.UserDataDir))
	}
	return out
}

// splitFlag turns "--name=value" into ("name", "value") and "--name" into
// ("name", true).
func splitFlag(arg string) (string, any) {
	arg = strings.TrimPrefix(arg, "--")
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}

func launchChromedp(ctx context.Context, opts LaunchOptions) (Browser, error) {
	log := zap.L().With(zap.String("component", "browser.chromedp"))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	startCtx := browserCtx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(browserCtx, opts.Timeout)
		defer cancel()
	}
	// An empty Run starts the browser process and its first tab.
	if err := chromedp.Run(startCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, eris.Wrap(err, "browser: launch chromium")
	}

	log.Info("chromium started",
		zap.Bool("headless", opts.Headless),
		zap.Bool("persistent", opts.Persistent),
		zap.Int("viewport_width", opts.Identity.Viewport.Width),
		zap.Int("viewport_height", opts.Identity.Viewport.Height),
	)

	return &chromeBrowser{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		identity:      opts.Identity,
		log:           log,
	}, nil
}

// NewPage hands out the tab the browser started with first, then opens new
// tabs in the same browser process.
func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	reuse := !b.firstTabTaken
	b.firstTabTaken = true
	b.mu.Unlock()

	tabCtx, cancel := b.browserCtx, context.CancelFunc(func() {})
	if !reuse {
		tabCtx, cancel = chromedp.NewContext(b.browserCtx)
	}

	p := &chromePage{ctx: tabCtx, cancel: cancel}
	if err := p.run(ctx, 0, b.setupActions()...); err != nil {
		cancel()
		return nil, eris.Wrap(err, "browser: prepare tab")
	}
	return p, nil
}

// setupActions applies the session identity to a tab before its first
// navigation.
func (b *chromeBrowser) setupActions() []chromedp.Action {
	id := b.identity
	headers := network.Headers{}
	for k, v := range id.Headers() {
		headers[k] = v
	}
	actions := []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(id.InitScript()).Do(ctx)
			return err
		}),
		network.SetExtraHTTPHeaders(headers),
	}
	if id.Timezone != "" {
		actions = append(actions, emulation.SetTimezoneOverride(id.Timezone))
	}
	if id.Locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(id.Locale))
	}
	if id.Viewport.Width > 0 && id.Viewport.Height > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(int64(id.Viewport.Width), int64(id.Viewport.Height), 1, false))
	}
	return actions
}

func (b *chromeBrowser) Close() error {
	b.browserCancel()
	b.allocCancel()
	b.log.Info("chromium closed")
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by timeout (when positive) and by
// the caller's ctx.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.Navigate(url)); err != nil {
		return eris.Wrapf(err, "browser: navigate to %s", url)
	}
	html, err := p.Content(ctx)
	if err != nil {
		return err
	}
	return stealth.CheckBlocked(0, nil, html)
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "browser: read content")
	}
	return html, nil
}

func (p *chromePage) Click(ctx context.Context, sel Selector) error {
	var clicked bool
	if err := p.run(ctx, 0, chromedp.Evaluate(findScript(sel, "el.click(); return true;"), &clicked)); err != nil {
		return eris.Wrapf(err, "browser: click %s", sel)
	}
	if !clicked {
		return eris.Errorf("browser: no element matches %s", sel)
	}
	return nil
}

// WaitFor waits until the selector is visible. Plain CSS selectors use the
// DevTools wait; filtered selectors are polled.
func (p *chromePage) WaitFor(ctx context.Context, sel Selector, timeout time.Duration) error {
	if sel.Text == "" && sel.Href == "" {
		if err := p.run(ctx, timeout, chromedp.WaitVisible(sel.CSS, chromedp.ByQuery)); err != nil {
			return eris.Wrapf(err, "browser: wait for %s", sel)
		}
		return nil
	}

	deadline := time.Now().Add(timeout)
	script := findScript(sel, "return el.offsetParent !== null;")
	for {
		var visible bool
		if err := p.run(ctx, 0, chromedp.Evaluate(script, &visible)); err != nil {
			return eris.Wrapf(err, "browser: wait for %s", sel)
		}
		if visible {
			return nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return eris.Wrapf(context.DeadlineExceeded, "browser: wait for %s", sel)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

func (p *chromePage) Scroll(ctx context.Context, dy int) error {
	return p.run(ctx, 0, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", dy), nil))
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// findScript returns an expression that locates the first element matching
// sel and evaluates body with it bound to el, or false when none matches.
func findScript(sel Selector, body string) string {
	css, _ := json.Marshal(sel.CSS)
	text, _ := json.Marshal(sel.Text)
	href, _ := json.Marshal(sel.Href)
	return fmt.Sprintf(`(() => {
	const text = %s, href = %s;
	const el = Array.from(document.querySelectorAll(%s)).find(e =>
		(!text || (e.textContent || '').includes(text)) &&
		(!href || (e.getAttribute('href') || '').includes(href)));
	if (!el) { return false; }
	%s
})()`, text, href, css, body)
}

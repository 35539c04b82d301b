package browser

import (
	"context"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/philgeps-cli/internal/resilience"
	"github.com/sells-group/philgeps-cli/internal/stealth"
)

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

// HTTPBrowser fetches pages with resty instead of rendering them. The portal's
// listing and detail pages are server-rendered, so this is enough for most
// runs and far cheaper than Chromium. Pages share one cookie jar.
type HTTPBrowser struct {
	client  *resty.Client
	limiter *AdaptiveLimiter
	timeout time.Duration
	log     *zap.Logger
}

// NewHTTPBrowser builds the HTTP driver.
func NewHTTPBrowser(opts LaunchOptions) (*HTTPBrowser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "browser: cookie jar")
	}

	headers := map[string]string{
		"Accept":     acceptHTML,
		"User-Agent": opts.Identity.UserAgent,
	}
	for k, v := range opts.Identity.Headers() {
		headers[k] = v
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport, cloudflarebp.Options{
		AddMissingHeaders: true,
		Headers:           headers,
	})
	client.SetHeaders(headers)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &HTTPBrowser{
		client:  client,
		limiter: NewAdaptiveLimiter(rate.Limit(rps), 1),
		timeout: opts.Timeout,
		log:     zap.L().With(zap.String("component", "browser.http")),
	}, nil
}

// NewPage returns a fresh tab sharing the browser's cookies.
func (b *HTTPBrowser) NewPage(_ context.Context) (Page, error) {
	return &httpPage{b: b}, nil
}

// Close drops idle connections; the HTTP driver holds no process.
func (b *HTTPBrowser) Close() error {
	b.client.GetClient().CloseIdleConnections()
	return nil
}

// fetch GETs rawURL and returns the decoded body and the final URL after
// redirects.
func (b *HTTPBrowser) fetch(ctx context.Context, rawURL string, timeout time.Duration) (string, string, error) {
	if timeout <= 0 {
		timeout = b.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return "", "", eris.Wrap(err, "browser: rate limiter wait")
	}

	resp, err := b.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return "", "", eris.Wrapf(err, "browser: get %s", rawURL)
	}

	status := resp.StatusCode()
	if status == http.StatusTooManyRequests {
		b.limiter.OnRateLimit()
	}
	if resilience.IsTransientHTTPStatus(status) {
		return "", "", resilience.NewTransientError(eris.Errorf("browser: %s returned %d", rawURL, status), status)
	}

	html, err := decodeBody(resp.Body(), resp.Header().Get("Content-Type"))
	if err != nil {
		return "", "", err
	}
	if err := stealth.CheckBlocked(status, resp.Header(), html); err != nil {
		return "", "", err
	}
	if status >= 400 {
		return "", "", eris.Errorf("browser: %s returned %d", rawURL, status)
	}

	b.limiter.OnSuccess()

	final := rawURL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		final = resp.RawResponse.Request.URL.String()
	}
	b.log.Debug("fetched page", zap.String("url", final), zap.Int("status", status), zap.Int("bytes", len(html)))
	return html, final, nil
}

// decodeBody converts body to UTF-8 using the charset in contentType.
func decodeBody(body []byte, contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return string(body), nil
	}
	name := strings.ToLower(params["charset"])
	if name == "utf-8" || name == "utf8" {
		return string(body), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(body), nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "browser: decode %s body", name)
	}
	return string(out), nil
}

type httpPage struct {
	b    *HTTPBrowser
	url  string
	html string
}

func (p *httpPage) Goto(ctx context.Context, rawURL string, timeout time.Duration) error {
	html, final, err := p.b.fetch(ctx, rawURL, timeout)
	if err != nil {
		return err
	}
	p.url, p.html = final, html
	return nil
}

func (p *httpPage) Content(_ context.Context) (string, error) {
	if p.url == "" {
		return "", eris.New("browser: no page loaded")
	}
	return p.html, nil
}

// Click follows the matched element's href and appends the response to the
// current document inside a #facebox container, which is where the portal's
// modal script would have put it.
func (p *httpPage) Click(ctx context.Context, sel Selector) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return eris.Wrap(err, "browser: parse current page")
	}
	match := matchSelection(doc, sel)
	if match.Length() == 0 {
		return eris.Errorf("browser: no element matches %s", sel)
	}
	href, ok := match.Attr("href")
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return eris.Errorf("browser: element %s has no followable href", sel)
	}
	target, err := resolveURL(p.url, href)
	if err != nil {
		return err
	}

	fragment, _, err := p.b.fetch(ctx, target, 0)
	if err != nil {
		return err
	}
	doc.Find("body").AppendHtml(`<div id="facebox"><div class="content">` + fragment + `</div></div>`)
	html, err := doc.Html()
	if err != nil {
		return eris.Wrap(err, "browser: render page")
	}
	p.html = html
	return nil
}

// WaitFor succeeds immediately when the element is already present; static
// pages never change after load.
func (p *httpPage) WaitFor(_ context.Context, sel Selector, _ time.Duration) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return eris.Wrap(err, "browser: parse current page")
	}
	if matchSelection(doc, sel).Length() == 0 {
		return eris.Errorf("browser: %s not present", sel)
	}
	return nil
}

func (p *httpPage) Scroll(_ context.Context, _ int) error { return nil }

func (p *httpPage) Close() error {
	p.url, p.html = "", ""
	return nil
}

func matchSelection(doc *goquery.Document, sel Selector) *goquery.Selection {
	return doc.Find(sel.CSS).FilterFunction(func(_ int, s *goquery.Selection) bool {
		if sel.Text != "" && !strings.Contains(s.Text(), sel.Text) {
			return false
		}
		if sel.Href != "" && !strings.Contains(s.AttrOr("href", ""), sel.Href) {
			return false
		}
		return true
	}).First()
}

func resolveURL(base, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", eris.Wrapf(err, "browser: parse href %q", ref)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "browser: parse base %q", base)
	}
	return b.ResolveReference(r).String(), nil
}

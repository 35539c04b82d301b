package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/philgeps-cli/internal/browser"
	"github.com/sells-group/philgeps-cli/internal/config"
	"github.com/sells-group/philgeps-cli/internal/listing"
	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/resilience"
	"github.com/sells-group/philgeps-cli/internal/stealth"
)

// fakeSite serves canned HTML by URL to every fakePage.
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string][]error
	panicOn map[string]bool
	modal   string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:   map[string]string{},
		fail:    map[string][]error{},
		panicOn: map[string]bool{},
	}
}

// nextFailure pops the next queued Goto error for url.
func (s *fakeSite) nextFailure(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := s.fail[url]
	if len(errs) == 0 {
		return nil
	}
	s.fail[url] = errs[1:]
	return errs[0]
}

type fakePage struct {
	site      *fakeSite
	mu        sync.Mutex
	current   string
	visited   []string
	modalOpen bool
	clicks    []browser.Selector
	closed    bool
}

func (p *fakePage) Goto(_ context.Context, url string, _ time.Duration) error {
	p.mu.Lock()
	p.visited = append(p.visited, url)
	p.modalOpen = false
	p.mu.Unlock()

	p.site.mu.Lock()
	boom := p.site.panicOn[url]
	p.site.mu.Unlock()
	if boom {
		panic("tab crashed on " + url)
	}
	if err := p.site.nextFailure(url); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = url
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Content(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	html, ok := p.site.pages[p.current]
	if !ok {
		return "", fmt.Errorf("no page at %s", p.current)
	}
	if p.modalOpen {
		html += p.site.modal
	}
	return html, nil
}

func (p *fakePage) Click(_ context.Context, sel browser.Selector) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, sel)
	if p.site.modal == "" {
		return errors.New("no element matches " + sel.String())
	}
	p.modalOpen = true
	return nil
}

func (p *fakePage) WaitFor(_ context.Context, sel browser.Selector, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.modalOpen {
		return errors.New("timed out waiting for " + sel.String())
	}
	return nil
}

func (p *fakePage) Scroll(_ context.Context, _ int) error { return nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

type fakeBrowser struct {
	site     *fakeSite
	mu       sync.Mutex
	pages    []*fakePage
	maxPages int
	closed   bool
}

func (b *fakeBrowser) NewPage(_ context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxPages > 0 && len(b.pages) >= b.maxPages {
		return nil, errors.New("too many tabs")
	}
	p := &fakePage{site: b.site}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]model.Record
	failOn    map[string]error
	sessions  []*model.ScrapeSession
	upserts   int
	sessionID int
}

func newFakeStore(existing ...string) *fakeStore {
	s := &fakeStore{records: map[string]model.Record{}, failOn: map[string]error{}}
	for _, k := range existing {
		s.records[k] = &model.BidNotice{ReferenceNumber: k}
	}
	return s
}

func (s *fakeStore) Exists(_ context.Context, _ model.RecordKind, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	return ok, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec model.Record) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := rec.NaturalKey()
	if err := s.failOn[key]; err != nil {
		return "", false, err
	}
	_, existed := s.records[key]
	s.records[key] = rec
	return "id-" + key, !existed, nil
}

func (s *fakeStore) AppendSession(_ context.Context, sess *model.ScrapeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID++
	sess.ID = fmt.Sprintf("sess-%d", s.sessionID)
	s.sessions = append(s.sessions, sess)
	return nil
}

type noopHumanizer struct{}

func (noopHumanizer) Pause(ctx context.Context, _, _ time.Duration) error { return ctx.Err() }

func (noopHumanizer) SimulateReading(_ context.Context, _ stealth.Scroller, _ time.Duration) error {
	return nil
}

// keyParse reads "REF:<key>" detail pages; anything else has no key.
func keyParse(html string) model.Record {
	b := &model.BidNotice{Status: model.DefaultBidStatus}
	if strings.HasPrefix(html, "REF:") {
		b.ReferenceNumber = strings.TrimSpace(strings.SplitN(strings.TrimPrefix(html, "REF:"), "\n", 2)[0])
	}
	return b
}

func testVariant(docs bool) Variant {
	v, err := VariantFor(model.KindBidNotice)
	if err != nil {
		panic(err)
	}
	v.Parse = keyParse
	v.Documents = docs
	return v
}

func detailURL(key string) string {
	return listing.BaseURL + "/tenders/viewBidNotice/" + key
}

func listingURL(page int) string {
	return listing.Endpoints[model.KindBidNotice].PageURL(page, config.FiltersConfig{})
}

// listingHTML renders a listing table for keys with an optional caption.
func listingHTML(caption string, keys ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><table><tbody>")
	for _, k := range keys {
		fmt.Fprintf(&b, `<tr><td><a href="/tenders/viewBidNotice/%s">%s</a></td><td>Title %s</td></tr>`, k, k, k)
	}
	b.WriteString("</tbody></table>")
	if caption != "" {
		fmt.Fprintf(&b, `<div class="paginator"><p>%s</p></div>`, caption)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// siteWith serves one listing page with keys and a detail page per key.
func siteWith(keys ...string) *fakeSite {
	site := newFakeSite()
	site.pages[listingURL(1)] = listingHTML("", keys...)
	for _, k := range keys {
		site.pages[detailURL(k)] = "REF:" + k
	}
	return site
}

func testOptions(workers int) Options {
	return Options{
		Scraper: config.ScraperConfig{
			Workers:          workers,
			StartPage:        1,
			RequestDelaySecs: 0,
			NavTimeoutSecs:   1,
			ModalTimeoutSecs: 1,
		},
		Retry:     resilience.RetryConfig{MaxAttempts: 1},
		Humanizer: noopHumanizer{},
		Now:       time.Now,
	}
}

func launcherFor(b *fakeBrowser) LaunchFunc {
	return func(context.Context) (browser.Browser, error) { return b, nil }
}

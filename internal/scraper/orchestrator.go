package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/philgeps-cli/internal/browser"
	"github.com/sells-group/philgeps-cli/internal/config"
	"github.com/sells-group/philgeps-cli/internal/dedup"
	"github.com/sells-group/philgeps-cli/internal/listing"
	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/resilience"
	"github.com/sells-group/philgeps-cli/internal/stealth"
)

const (
	// untilEmptyPageCap bounds a crawl whose page count the portal did not report.
	untilEmptyPageCap = 500
	// maxFailedPagesInRow stops an until-empty crawl that keeps failing.
	maxFailedPagesInRow = 3
	sessionLogTimeout   = 15 * time.Second
)

// Store is what a session reads and writes.
type Store interface {
	dedup.Checker
	Upserter
	AppendSession(ctx context.Context, sess *model.ScrapeSession) error
}

// LaunchFunc starts the session's browser.
type LaunchFunc func(ctx context.Context) (browser.Browser, error)

// Options configures an Orchestrator.
type Options struct {
	Scraper config.ScraperConfig
	// CrawlAll keeps paging until an empty page when the portal reports no
	// page count.
	CrawlAll bool
	// Location resolves TODAY/YESTERDAY/AUTO filter keywords. Defaults to UTC.
	Location *time.Location

	Retry     resilience.RetryConfig
	Breaker   *resilience.CircuitBreaker
	Humanizer Humanizer
	Status    *Status
	Auth      Authenticator
	Now       func() time.Time
}

// Orchestrator runs sessions of one Variant.
type Orchestrator struct {
	variant Variant
	store   Store
	gate    *dedup.Gate
	launch  LaunchFunc
	opts    Options
	log     *zap.Logger
}

// New creates an Orchestrator. Missing Humanizer, Status and Now are filled
// with working defaults.
func New(v Variant, st Store, launch LaunchFunc, opts Options) *Orchestrator {
	if opts.Status == nil {
		opts.Status = NewStatus()
	}
	if opts.Humanizer == nil {
		opts.Humanizer = stealth.NewHumanizer()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Scraper.Workers < 1 {
		opts.Scraper.Workers = 1
	}
	return &Orchestrator{
		variant: v,
		store:   st,
		gate:    dedup.NewGate(st),
		launch:  launch,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "orchestrator"), zap.String("kind", string(v.Kind))),
	}
}

// Status returns the status object this orchestrator reports into.
func (o *Orchestrator) Status() *Status {
	return o.opts.Status
}

// Run executes one session and returns its summary. Cleanup and the session
// log always run once the session has begun. A session refused by Status
// (busy or stopped) returns a failed summary without touching the browser
// or the session log.
func (o *Orchestrator) Run(ctx context.Context) (summary model.RunSummary) {
	summary = model.RunSummary{Kind: o.variant.Kind, Workers: o.opts.Scraper.Workers}
	start := o.opts.Now()
	if err := o.opts.Status.Begin(o.variant.Kind, start); err != nil {
		summary.Error = err.Error()
		return summary
	}

	runLog := o.log.With(zap.String("run_id", uuid.New().String()))
	runLog.Info("session started", zap.Int("workers", o.opts.Scraper.Workers))

	var (
		br         browser.Browser
		pages      []browser.Page
		candidates int
	)
	defer func() {
		o.opts.Status.SetPhase(PhaseCleanup)
		o.cleanup(br, pages)
		end := o.opts.Now()
		summary.DurationSeconds = end.Sub(start).Seconds()
		summary.SessionID = o.logSession(ctx, start, end, candidates, summary)
		runLog.Info("session finished",
			zap.Bool("success", summary.Success),
			zap.Int("total_scraped", summary.TotalScraped),
			zap.Int("new_records", summary.NewRecords),
			zap.Int("skipped", summary.Skipped),
			zap.Int("errors", summary.Errors),
			zap.Float64("duration_seconds", summary.DurationSeconds),
		)
		o.opts.Status.Finish(summary, end)
	}()

	fail := func(err error) model.RunSummary {
		runLog.Error("session failed", zap.Error(err))
		summary.Success = false
		summary.Error = err.Error()
		return summary
	}

	// BrowserInit
	o.opts.Status.SetPhase(PhaseBrowserInit)
	var err error
	br, err = o.launch(ctx)
	if err != nil {
		return fail(eris.Wrap(err, "scraper: launch browser"))
	}
	first, err := br.NewPage(ctx)
	if err != nil {
		return fail(eris.Wrap(err, "scraper: open tab"))
	}
	pages = append(pages, first)

	// Authenticating
	if o.variant.RequiresAuth {
		o.opts.Status.SetPhase(PhaseAuthenticating)
		if o.opts.Auth == nil {
			return fail(ErrAuthRequired)
		}
		if err := o.opts.Auth.Login(ctx, first); err != nil {
			return fail(eris.Wrap(err, "scraper: login"))
		}
	}

	// ListingCrawl
	o.opts.Status.SetPhase(PhaseListingCrawl)
	found := o.crawl(ctx, first)
	candidates = len(found)

	// Dedup
	o.opts.Status.SetPhase(PhaseDedup)
	toScrape, skipped, err := o.gate.Filter(ctx, o.variant.Kind, found)
	if err != nil {
		return fail(err)
	}
	summary.Skipped = skipped
	if len(toScrape) == 0 {
		runLog.Info("nothing new to scrape", zap.Int("candidates", candidates))
		summary.Success = true
		return summary
	}

	// Partition. The first tab is reused by worker 0.
	o.opts.Status.SetPhase(PhasePartition)
	want := min(o.opts.Scraper.Workers, len(toScrape))
	for len(pages) < want {
		p, err := br.NewPage(ctx)
		if err != nil {
			runLog.Warn("could not open worker tab, continuing with fewer workers",
				zap.Int("tabs", len(pages)), zap.Error(err))
			break
		}
		pages = append(pages, p)
	}
	parts := Partition(toScrape, len(pages))
	o.opts.Status.SetTotal(len(toScrape))

	// Scraping
	o.opts.Status.SetPhase(PhaseScraping)
	results := make([]model.WorkerResult, len(parts))
	workerErrs := make([]error, len(parts))
	var g errgroup.Group
	g.SetLimit(len(parts))
	for i, part := range parts {
		w := NewWorker(i, pages[i], o.variant, o.store, o.opts.Humanizer,
			o.opts.Retry, o.opts.Breaker, o.workerConfig(), o.opts.Status.Advance)
		g.Go(func() error {
			results[i], workerErrs[i] = w.Run(ctx, part)
			return nil
		})
	}
	_ = g.Wait()

	// Aggregating
	o.opts.Status.SetPhase(PhaseAggregating)
	for i, r := range results {
		summary.TotalScraped += r.Scraped
		summary.NewRecords += r.New
		summary.Errors += r.Errors
		summary.Failed = append(summary.Failed, r.Failed...)
		if workerErrs[i] != nil {
			summary.Errors++
			runLog.Warn("worker ended early", zap.Int("worker", i), zap.Error(workerErrs[i]))
		}
	}
	summary.Workers = len(parts)
	summary.Success = summary.TotalScraped > 0 || summary.Errors == 0
	if !summary.Success {
		summary.Error = fmt.Sprintf("no records scraped, %d errors", summary.Errors)
	}
	return summary
}

func (o *Orchestrator) workerConfig() WorkerConfig {
	sc := o.opts.Scraper
	return WorkerConfig{
		NavTimeout:     sc.NavTimeout(),
		ModalTimeout:   sc.ModalTimeout(),
		ReadingBase:    secs(sc.ReadingSecs),
		RequestDelay:   secs(sc.RequestDelaySecs),
		FetchDocuments: sc.FetchDocuments,
	}
}

// crawl walks listing pages in order. A page that fails is logged and
// contributes nothing. Without a "Page n of N" caption the crawl stops after
// the first page unless MaxPages or CrawlAll asks for more, in which case it
// pages forward until a page yields no rows, giving up at untilEmptyPageCap
// pages when nothing bounds the crawl.
func (o *Orchestrator) crawl(ctx context.Context, page browser.Page) []model.RecordSummary {
	sc := o.opts.Scraper
	filters := config.ResolveFilters(sc.Filters, o.opts.Now(), o.opts.Location)
	startPage := max(sc.StartPage, 1)
	lastPage := 0
	if sc.MaxPages > 0 {
		lastPage = startPage + sc.MaxPages - 1
	}
	untilEmpty := sc.MaxPages > 0 || o.opts.CrawlAll

	var out []model.RecordSummary
	failedInRow := 0
	for n := startPage; ; n++ {
		if ctx.Err() != nil {
			o.log.Warn("listing crawl cancelled", zap.Int("page", n))
			return out
		}

		url := o.variant.Endpoint.PageURL(n, filters)
		doc, err := o.fetchListing(ctx, page, url)
		var rows []model.RecordSummary
		if err != nil {
			failedInRow++
			o.log.Warn("listing page failed", zap.Int("page", n), zap.String("url", url), zap.Error(err))
		} else {
			failedInRow = 0
			rows = listing.Extract(doc, o.variant.Mapping)
			out = append(out, rows...)
			o.log.Info("listing page crawled", zap.Int("page", n), zap.Int("rows", len(rows)))

			if total, ok := listing.TotalPages(doc); ok {
				untilEmpty = false
				if lastPage == 0 || total < lastPage {
					lastPage = total
				}
			}
		}

		switch {
		case lastPage > 0 && n >= lastPage:
			return out
		case lastPage == 0 && !untilEmpty:
			return out
		case untilEmpty && err == nil && len(rows) == 0:
			return out
		case untilEmpty && failedInRow >= maxFailedPagesInRow:
			o.log.Warn("listing crawl abandoned after repeated failures", zap.Int("page", n))
			return out
		case untilEmpty && lastPage == 0 && n-startPage+1 >= untilEmptyPageCap:
			o.log.Warn("listing crawl reached page cap", zap.Int("page", n))
			return out
		}

		if err := o.opts.Humanizer.Pause(ctx, secs(sc.PaginationDelayMinSecs), secs(sc.PaginationDelayMaxSecs)); err != nil {
			return out
		}
	}
}

func (o *Orchestrator) fetchListing(ctx context.Context, page browser.Page, url string) (*goquery.Document, error) {
	cfg := o.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("orchestrator", "listing "+url)
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return page.Goto(ctx, url, o.opts.Scraper.NavTimeout())
	})
	if err != nil {
		return nil, err
	}
	html, err := page.Content(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scraper: listing content")
	}
	return listing.NewDocument(strings.NewReader(html))
}

// cleanup closes every tab and the browser, logging rather than returning errors.
func (o *Orchestrator) cleanup(br browser.Browser, pages []browser.Page) {
	for i, p := range pages {
		if err := p.Close(); err != nil {
			o.log.Warn("close tab", zap.Int("tab", i), zap.Error(err))
		}
	}
	if br != nil {
		if err := br.Close(); err != nil {
			o.log.Warn("close browser", zap.Error(err))
		}
	}
}

// logSession appends the session entry even when ctx is already cancelled.
func (o *Orchestrator) logSession(ctx context.Context, start, end time.Time, candidates int, s model.RunSummary) string {
	sess := &model.ScrapeSession{
		Kind:            o.variant.Kind,
		StartedAt:       start,
		EndedAt:         end,
		DurationSeconds: s.DurationSeconds,
		TotalCandidates: candidates,
		TotalScraped:    s.TotalScraped,
		NewRecords:      s.NewRecords,
		Skipped:         s.Skipped,
		Errors:          s.Errors,
		Success:         s.Success,
		Notes:           fmt.Sprintf("Public scraping (no auth) with %d workers", s.Workers),
	}
	if o.variant.RequiresAuth {
		sess.Notes = fmt.Sprintf("Authenticated scraping with %d workers", s.Workers)
	}
	if s.Error != "" {
		sess.Notes += "; " + s.Error
	}

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionLogTimeout)
	defer cancel()
	if err := o.store.AppendSession(logCtx, sess); err != nil {
		o.log.Error("append session log", zap.Error(err))
		return ""
	}
	return sess.ID
}

func secs(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

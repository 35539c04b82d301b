package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/philgeps-cli/internal/browser"
	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/parser"
	"github.com/sells-group/philgeps-cli/internal/resilience"
	"github.com/sells-group/philgeps-cli/internal/stealth"
)

// ErrMissingNaturalKey rejects a parsed page that carried no reference or
// award notice number. Such records are never persisted.
var ErrMissingNaturalKey = eris.New("scraper: parsed record has no natural key")

var (
	docPreviewLink  = browser.Selector{CSS: `a[rel="facebox"]`, Text: "Preview"}
	docFallbackLink = browser.Selector{CSS: `a[rel="facebox"]`, Href: "tender_doc_view"}
	docModal        = browser.Selector{CSS: "#facebox .content"}
)

// Upserter persists one parsed record.
type Upserter interface {
	Upsert(ctx context.Context, rec model.Record) (id string, created bool, err error)
}

// Humanizer paces a worker between and during page visits.
type Humanizer interface {
	Pause(ctx context.Context, lo, hi time.Duration) error
	SimulateReading(ctx context.Context, s stealth.Scroller, base time.Duration) error
}

// WorkerConfig holds the per-item timing knobs.
type WorkerConfig struct {
	NavTimeout     time.Duration
	ModalTimeout   time.Duration
	ReadingBase    time.Duration
	RequestDelay   time.Duration
	FetchDocuments bool
}

// Worker scrapes its share of detail pages sequentially on one tab.
type Worker struct {
	id        int
	page      browser.Page
	variant   Variant
	store     Upserter
	humanizer Humanizer
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	cfg       WorkerConfig
	onItem    func()
	log       *zap.Logger
}

// NewWorker creates a worker bound to page. breaker may be shared across
// workers; onItem, when set, is called after every item.
func NewWorker(id int, page browser.Page, v Variant, st Upserter, h Humanizer,
	retry resilience.RetryConfig, breaker *resilience.CircuitBreaker, cfg WorkerConfig, onItem func(),
) *Worker {
	return &Worker{
		id:        id,
		page:      page,
		variant:   v,
		store:     st,
		humanizer: h,
		retry:     retry,
		breaker:   breaker,
		cfg:       cfg,
		onItem:    onItem,
		log:       zap.L().With(
			zap.String("component", "worker"),
			zap.Int("worker", id),
			zap.String("kind", string(v.Kind)),
		),
	}
}

// Run processes items in order. A failing item is counted and skipped. A
// panic ends the loop early; the tally gathered so far is still returned,
// together with an error describing the panic.
func (w *Worker) Run(ctx context.Context, items []model.RecordSummary) (res model.WorkerResult, err error) {
	res = model.WorkerResult{WorkerID: w.id, Assigned: len(items)}
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scraper: worker %d panicked: %v", w.id, r)
			w.log.Error("worker aborted", zap.Any("panic", r), zap.Int("scraped", res.Scraped))
		}
	}()

	w.log.Info("worker started", zap.Int("assigned", len(items)))
	for i, item := range items {
		if ctxErr := ctx.Err(); ctxErr != nil {
			w.log.Warn("worker cancelled", zap.Int("remaining", len(items)-i))
			return res, eris.Wrap(ctxErr, "scraper: worker cancelled")
		}

		created, itemErr := w.scrapeOne(ctx, item)
		if itemErr != nil {
			res.Errors++
			res.Failed = append(res.Failed, resilience.NewFailedRecord(item.Key, item.URL, itemErr))
			w.log.Warn("record failed",
				zap.String("key", item.Key),
				zap.String("url", item.URL),
				zap.String("error_type", resilience.ClassifyError(itemErr)),
				zap.Error(itemErr),
			)
		} else {
			res.Scraped++
			if created {
				res.New++
			}
		}
		if w.onItem != nil {
			w.onItem()
		}

		if i < len(items)-1 {
			lo := time.Duration(float64(w.cfg.RequestDelay) * 0.8)
			hi := time.Duration(float64(w.cfg.RequestDelay) * 1.5)
			if pauseErr := w.humanizer.Pause(ctx, lo, hi); pauseErr != nil {
				w.log.Warn("worker cancelled", zap.Int("remaining", len(items)-i-1))
				return res, eris.Wrap(pauseErr, "scraper: worker cancelled")
			}
		}
	}

	w.log.Info("worker finished",
		zap.Int("scraped", res.Scraped),
		zap.Int("new", res.New),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

// scrapeOne navigates, parses and upserts one record.
func (w *Worker) scrapeOne(ctx context.Context, item model.RecordSummary) (bool, error) {
	if err := w.navigate(ctx, item.URL); err != nil {
		return false, err
	}
	if err := w.humanizer.SimulateReading(ctx, w.page, w.cfg.ReadingBase); err != nil {
		return false, eris.Wrap(err, "scraper: reading")
	}

	html, err := w.page.Content(ctx)
	if err != nil {
		return false, eris.Wrapf(err, "scraper: content %s", item.URL)
	}

	rec := w.variant.Parse(html)
	if rec == nil || rec.NaturalKey() == "" {
		return false, eris.Wrapf(ErrMissingNaturalKey, "listing key %s", item.Key)
	}
	rec.SetSourceURL(item.URL)

	if w.variant.Documents && w.cfg.FetchDocuments {
		if docs := w.modalDocuments(ctx); len(docs) > 0 {
			rec.SetDocuments(docs)
		}
	}

	_, created, err := w.store.Upsert(ctx, rec)
	if err != nil {
		return false, eris.Wrapf(err, "scraper: upsert %s", rec.NaturalKey())
	}
	return created, nil
}

// navigate loads url, retrying transient failures. The shared breaker trips
// on repeated transient failures and then fails items fast.
func (w *Worker) navigate(ctx context.Context, url string) error {
	cfg := w.retry
	cfg.OnRetry = resilience.RetryLogger("worker", fmt.Sprintf("navigate %s", url))
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		goTo := func(ctx context.Context) error {
			return w.page.Goto(ctx, url, w.cfg.NavTimeout)
		}
		if w.breaker == nil {
			return goTo(ctx)
		}
		return w.breaker.Execute(ctx, goTo)
	})
}

// modalDocuments opens the bid documents modal and parses its links. Any
// failure returns nil so the documents parsed from the detail page stand.
func (w *Worker) modalDocuments(ctx context.Context) []model.Document {
	if err := w.page.Click(ctx, docPreviewLink); err != nil {
		if err := w.page.Click(ctx, docFallbackLink); err != nil {
			w.log.Debug("no document modal link", zap.Error(err))
			return nil
		}
	}
	if err := w.page.WaitFor(ctx, docModal, w.cfg.ModalTimeout); err != nil {
		w.log.Debug("document modal did not open", zap.Error(err))
		return nil
	}
	if err := w.humanizer.Pause(ctx, 800*time.Millisecond, 1500*time.Millisecond); err != nil {
		return nil
	}
	html, err := w.page.Content(ctx)
	if err != nil {
		w.log.Debug("document modal content", zap.Error(err))
		return nil
	}
	return parser.ParseDocuments(html)
}

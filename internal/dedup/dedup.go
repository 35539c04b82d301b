// Package dedup decides, once per listing candidate, whether a record is
// already stored and can be skipped.
package dedup

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// Checker is the read-only slice of the store the gate needs.
type Checker interface {
	Exists(ctx context.Context, kind model.RecordKind, key string) (bool, error)
}

// Gate filters candidates against storage without mutating it.
type Gate struct {
	checker Checker
	log     *zap.Logger
}

// NewGate creates a Gate backed by checker.
func NewGate(checker Checker) *Gate {
	return &Gate{
		checker: checker,
		log:     zap.L().With(zap.String("component", "dedup")),
	}
}

// Exists reports whether a record of kind with the given natural key is stored.
func (g *Gate) Exists(ctx context.Context, kind model.RecordKind, key string) (bool, error) {
	ok, err := g.checker.Exists(ctx, kind, key)
	if err != nil {
		return false, eris.Wrapf(err, "dedup: exists %s", key)
	}
	return ok, nil
}

// Filter splits summaries into those still to scrape and the count already
// present. Keys repeated within summaries are kept once. A lookup failure for
// one key keeps that candidate in the to-scrape set, since the upsert is
// idempotent; only context cancellation aborts the pass.
func (g *Gate) Filter(ctx context.Context, kind model.RecordKind, summaries []model.RecordSummary) ([]model.RecordSummary, int, error) {
	seen := make(map[string]struct{}, len(summaries))
	toScrape := make([]model.RecordSummary, 0, len(summaries))
	skipped := 0

	for _, s := range summaries {
		if err := ctx.Err(); err != nil {
			return nil, 0, eris.Wrap(err, "dedup: filter")
		}
		if _, dup := seen[s.Key]; dup {
			skipped++
			continue
		}
		seen[s.Key] = struct{}{}

		exists, err := g.Exists(ctx, kind, s.Key)
		if err != nil {
			g.log.Warn("existence check failed, scraping anyway",
				zap.String("key", s.Key),
				zap.Error(err),
			)
		}
		if exists {
			skipped++
			continue
		}
		toScrape = append(toScrape, s)
	}

	g.log.Info("dedup complete",
		zap.String("kind", string(kind)),
		zap.Int("candidates", len(summaries)),
		zap.Int("to_scrape", len(toScrape)),
		zap.Int("skipped", skipped),
	)
	return toScrape, skipped, nil
}

package stealth

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RandomDelay draws a duration from a normal distribution centred between lo
// and hi (standard deviation a quarter of the range), clamped to [lo, hi].
func RandomDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	mean := float64(lo+hi) / 2
	sd := float64(hi-lo) / 4
	d := time.Duration(rand.NormFloat64()*sd + mean)
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// Scroller is a page that can scroll its viewport vertically.
type Scroller interface {
	Scroll(ctx context.Context, dy int) error
}

// Humanizer paces a session with jittered sleeps and the occasional scroll.
type Humanizer struct {
	sleep func(ctx context.Context, d time.Duration) error
	intn  func(n int) int
}

// NewHumanizer returns a Humanizer that really sleeps.
func NewHumanizer() *Humanizer {
	return &Humanizer{sleep: sleepCtx, intn: rand.IntN}
}

// Pause sleeps RandomDelay(lo, hi). It returns early with ctx.Err() when
// the context is done.
func (h *Humanizer) Pause(ctx context.Context, lo, hi time.Duration) error {
	return h.sleep(ctx, RandomDelay(lo, hi))
}

// SimulateReading scrolls 0–2 times by 100–300px with short gaps, then dwells
// for base ±20%. Scroll failures are ignored.
func (h *Humanizer) SimulateReading(ctx context.Context, s Scroller, base time.Duration) error {
	scrolls := h.intn(3)
	for i := 0; i < scrolls && s != nil; i++ {
		if err := s.Scroll(ctx, 100+h.intn(201)); err != nil {
			zap.L().Debug("stealth: scroll failed", zap.Error(err))
		}
		if err := h.sleep(ctx, 300*time.Millisecond+time.Duration(h.intn(501))*time.Millisecond); err != nil {
			return err
		}
	}
	dwell := RandomDelay(time.Duration(float64(base)*0.8), time.Duration(float64(base)*1.2))
	return h.sleep(ctx, dwell)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/philgeps-cli/internal/config"
	"github.com/sells-group/philgeps-cli/internal/model"
)

func TestNextRun(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2024, 3, 1, 1, 30, 0, 0, manila),
			want: time.Date(2024, 3, 1, 3, 0, 0, 0, manila),
		},
		{
			name: "already passed rolls to tomorrow",
			now:  time.Date(2024, 3, 1, 4, 0, 0, 0, manila),
			want: time.Date(2024, 3, 2, 3, 0, 0, 0, manila),
		},
		{
			name: "exactly on time rolls to tomorrow",
			now:  time.Date(2024, 3, 1, 3, 0, 0, 0, manila),
			want: time.Date(2024, 3, 2, 3, 0, 0, 0, manila),
		},
		{
			name: "month end",
			now:  time.Date(2024, 2, 29, 23, 0, 0, 0, manila),
			want: time.Date(2024, 3, 1, 3, 0, 0, 0, manila),
		},
		{
			name: "now in another zone",
			now:  time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC), // 02:00 next day in Manila
			want: time.Date(2024, 3, 2, 3, 0, 0, 0, manila),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, 3, 0, manila)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestNextRun_NilLocation(t *testing.T) {
	got := NextRun(time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), 3, 15, nil)
	assert.True(t, got.Equal(time.Date(2024, 3, 2, 3, 15, 0, 0, time.UTC)))
}

func TestNew_Validation(t *testing.T) {
	job := func(context.Context, model.RecordKind) model.RunSummary { return model.RunSummary{} }

	_, err := New(config.ScheduleConfig{Hour: 24}, job, nil)
	assert.Error(t, err)

	_, err = New(config.ScheduleConfig{Hour: 3, Kinds: []string{"tenders"}}, job, nil)
	assert.Error(t, err)

	_, err = New(config.ScheduleConfig{Hour: 3}, nil, nil)
	assert.Error(t, err)

	s, err := New(config.ScheduleConfig{Hour: 3, Timezone: "UTC"}, job, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.RecordKind{model.KindBidNotice}, s.kinds)
}

// fireN returns an after func that fires immediately n times, then cancels ctx.
func fireN(n int, cancel context.CancelFunc) func(time.Duration) <-chan time.Time {
	var mu sync.Mutex
	fired := 0
	return func(time.Duration) <-chan time.Time {
		mu.Lock()
		defer mu.Unlock()
		ch := make(chan time.Time, 1)
		if fired < n {
			fired++
			ch <- time.Now()
		} else {
			cancel()
		}
		return ch
	}
}

func TestScheduler_RunFiresEachKind(t *testing.T) {
	var got []model.RecordKind
	job := func(_ context.Context, kind model.RecordKind) model.RunSummary {
		got = append(got, kind)
		return model.RunSummary{Kind: kind, Success: true}
	}

	s, err := New(config.ScheduleConfig{Hour: 3, Timezone: "UTC", Kinds: []string{"bids", "awards"}}, job, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.after = fireN(2, cancel)
	s.Run(ctx)

	assert.Equal(t, []model.RecordKind{
		model.KindBidNotice, model.KindAward,
		model.KindBidNotice, model.KindAward,
	}, got)
}

func TestScheduler_SkipsWhileStopped(t *testing.T) {
	calls := 0
	job := func(context.Context, model.RecordKind) model.RunSummary {
		calls++
		return model.RunSummary{}
	}
	stopped := true

	s, err := New(config.ScheduleConfig{Hour: 3, Timezone: "UTC"}, job, func() bool { return stopped })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.after = fireN(3, cancel)
	s.Run(ctx)

	assert.Zero(t, calls)
}

func TestScheduler_WaitsUntilNext(t *testing.T) {
	job := func(context.Context, model.RecordKind) model.RunSummary { return model.RunSummary{} }
	s, err := New(config.ScheduleConfig{Hour: 3, Minute: 30, Timezone: "UTC"}, job, nil)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC) }
	var waited time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	s.after = func(d time.Duration) <-chan time.Time {
		waited = d
		cancel()
		return make(chan time.Time)
	}
	s.Run(ctx)

	assert.Equal(t, 90*time.Minute, waited)
}

package stealth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/philgeps-cli/internal/resilience"
)

func TestRandomDelay_WithinBounds(t *testing.T) {
	t.Parallel()

	bounds := [][2]time.Duration{
		{1500 * time.Millisecond, 3500 * time.Millisecond},
		{1600 * time.Millisecond, 3 * time.Second},
		{0, time.Millisecond},
	}
	for _, b := range bounds {
		for i := 0; i < 2000; i++ {
			d := RandomDelay(b[0], b[1])
			require.GreaterOrEqual(t, d, b[0])
			require.LessOrEqual(t, d, b[1])
		}
	}
}

func TestRandomDelay_DegenerateRange(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Second, RandomDelay(time.Second, time.Second))
	assert.Equal(t, 2*time.Second, RandomDelay(2*time.Second, time.Second))
}

func TestRandomDelay_CentresOnMean(t *testing.T) {
	t.Parallel()

	var sum time.Duration
	const n = 5000
	for i := 0; i < n; i++ {
		sum += RandomDelay(time.Second, 3*time.Second)
	}
	mean := sum / n
	assert.InDelta(t, float64(2*time.Second), float64(mean), float64(100*time.Millisecond))
}

func TestNewIdentity(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		id := NewIdentity()
		assert.Contains(t, UserAgents, id.UserAgent)
		assert.Contains(t, Viewports, id.Viewport)
		assert.Contains(t, LanguageSets, id.Languages)
		assert.Equal(t, "en-US", id.Locale)
		assert.Equal(t, "Asia/Manila", id.Timezone)
	}
}

func TestIdentity_LanguagesAreCopied(t *testing.T) {
	t.Parallel()

	id := NewIdentity()
	id.Languages[0] = "xx"
	for _, set := range LanguageSets {
		assert.NotEqual(t, "xx", set[0])
	}
}

func TestIdentity_Headers(t *testing.T) {
	t.Parallel()

	id := Identity{Languages: []string{"en-PH", "en", "tl"}}
	assert.Equal(t, "en-PH, en, tl", id.AcceptLanguage())
	assert.Equal(t, map[string]string{"Accept-Language": "en-PH, en, tl"}, id.Headers())
}

func TestIdentity_InitScripts(t *testing.T) {
	t.Parallel()

	id := Identity{Languages: []string{"en-GB", "en"}}
	scripts := id.InitScripts()
	require.Len(t, scripts, 7)
	assert.Contains(t, scripts[0], "webdriver")
	assert.Contains(t, scripts[6], `["en-GB","en"]`)

	joined := id.InitScript()
	assert.Equal(t, 7, strings.Count(joined, "try {"))
	assert.Contains(t, joined, "WebGLRenderingContext")
}

func TestLaunchArgs(t *testing.T) {
	t.Parallel()

	args := LaunchArgs()
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	assert.Contains(t, args, "--no-sandbox")
	assert.Contains(t, args, "--window-size=1920,1080")

	args[0] = "mutated"
	assert.Equal(t, "--disable-blink-features=AutomationControlled", LaunchArgs()[0])
}

type recordingScroller struct {
	deltas []int
	err    error
}

func (r *recordingScroller) Scroll(_ context.Context, dy int) error {
	r.deltas = append(r.deltas, dy)
	return r.err
}

func newTestHumanizer(sleeps *[]time.Duration, intn func(int) int) *Humanizer {
	return &Humanizer{
		sleep: func(_ context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		},
		intn: intn,
	}
}

func TestHumanizer_SimulateReading_ScrollsAndDwells(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration
	// intn(3) -> 2 scrolls; intn(201) -> 200 so 300px; intn(501) -> 500 so 800ms gap.
	h := newTestHumanizer(&sleeps, func(n int) int { return n - 1 })
	s := &recordingScroller{}

	require.NoError(t, h.SimulateReading(context.Background(), s, 2*time.Second))

	assert.Equal(t, []int{300, 300}, s.deltas)
	require.Len(t, sleeps, 3)
	assert.Equal(t, 800*time.Millisecond, sleeps[0])
	assert.GreaterOrEqual(t, sleeps[2], 1600*time.Millisecond)
	assert.LessOrEqual(t, sleeps[2], 2400*time.Millisecond)
}

func TestHumanizer_SimulateReading_NoScroll(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration
	h := newTestHumanizer(&sleeps, func(int) int { return 0 })
	s := &recordingScroller{}

	require.NoError(t, h.SimulateReading(context.Background(), s, time.Second))
	assert.Empty(t, s.deltas)
	assert.Len(t, sleeps, 1)
}

func TestHumanizer_SimulateReading_ScrollErrorIgnored(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration
	h := newTestHumanizer(&sleeps, func(n int) int { return n - 1 })
	s := &recordingScroller{err: errors.New("detached")}

	assert.NoError(t, h.SimulateReading(context.Background(), s, time.Second))
}

func TestHumanizer_PauseHonoursContext(t *testing.T) {
	t.Parallel()

	h := NewHumanizer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := h.Pause(ctx, time.Hour, 2*time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDetectBlock(t *testing.T) {
	t.Parallel()

	cfHeader := http.Header{}
	cfHeader.Set("cf-ray", "abc123")

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare header", 403, cfHeader, "<html></html>", BlockCloudflare},
		{"cloudflare challenge body", 0, nil, "<html><title>Just a moment...</title></html>", BlockCloudflare},
		{"captcha wall", 200, nil, `<div class="g-recaptcha"></div>`, BlockCaptcha},
		{"captcha in big page ignored", 200, nil, `<div class="g-recaptcha"></div>` + strings.Repeat("<p>row</p>", 3000), BlockNone},
		{"js shell", 200, nil, `<noscript>Please enable JavaScript</noscript>`, BlockJSShell},
		{"meta refresh", 200, nil, `<meta http-equiv="refresh" content="0;url=/">`, BlockJSShell},
		{"normal page", 200, nil, `<html><body><table><tr><td>Reference Number</td></tr></table></body></html>`, BlockNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			blocked, kind := DetectBlock(tt.status, tt.header, tt.body)
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestCheckBlocked(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckBlocked(200, nil, "<html><body>ok</body></html>"))

	err := CheckBlocked(0, nil, "<title>Just a moment...</title>")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.ErrorIs(t, err, ErrBlocked)
}

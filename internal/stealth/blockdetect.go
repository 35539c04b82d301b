package stealth

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/resilience"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// ErrBlocked is wrapped by CheckBlocked when a page is an anti-bot interstitial.
var ErrBlocked = eris.New("stealth: blocked by anti-bot page")

// DetectBlock inspects a fetched page for signs of anti-bot protection.
// status and header may be zero/nil when the driver cannot report them.
func DetectBlock(status int, header http.Header, body string) (bool, BlockType) {
	if (status == http.StatusForbidden || status == http.StatusServiceUnavailable) && header != nil {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" || strings.EqualFold(header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(body)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "<title>just a moment...</title>") ||
		strings.Contains(lower, "attention required! | cloudflare") {
		return true, BlockCloudflare
	}

	// Full portal pages can embed a captcha widget in the login box, so only
	// small pages count as captcha walls.
	if len(body) < 20000 && (strings.Contains(lower, "g-recaptcha") || strings.Contains(lower, "h-captcha") || strings.Contains(lower, "captcha-container")) {
		return true, BlockCaptcha
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}

// CheckBlocked returns a transient error wrapping ErrBlocked when the page is
// an interstitial, so navigation retry backs off and tries again.
func CheckBlocked(status int, header http.Header, body string) error {
	blocked, kind := DetectBlock(status, header, body)
	if !blocked {
		return nil
	}
	return resilience.NewTransientError(eris.Wrapf(ErrBlocked, "block type %s", kind), status)
}

// Package stealth holds the browser fingerprint and pacing policy used to keep
// scraping sessions looking like a person at a desktop browser.
package stealth

import (
	"math/rand/v2"
	"strings"
)

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// UserAgents are current desktop Chrome builds on the three major platforms.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
}

// Viewports are common desktop resolutions.
var Viewports = []Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1280, Height: 720},
}

// LanguageSets are navigator.languages values plausible for visitors from the Philippines.
var LanguageSets = [][]string{
	{"en-US", "en"},
	{"en-GB", "en"},
	{"en-PH", "en", "tl"},
}

const (
	// Locale is the browser locale for every session.
	Locale = "en-US"
	// Timezone matches the portal's audience.
	Timezone = "Asia/Manila"
)

// Identity is the fingerprint one session presents. It is chosen once at
// session start and never changes mid-session.
type Identity struct {
	UserAgent string   `json:"user_agent"`
	Viewport  Viewport `json:"viewport"`
	Languages []string `json:"languages"`
	Locale    string   `json:"locale"`
	Timezone  string   `json:"timezone"`
}

// NewIdentity picks a random user agent, viewport and language set.
func NewIdentity() Identity {
	langs := LanguageSets[rand.IntN(len(LanguageSets))]
	return Identity{
		UserAgent: UserAgents[rand.IntN(len(UserAgents))],
		Viewport:  Viewports[rand.IntN(len(Viewports))],
		Languages: append([]string(nil), langs...),
		Locale:    Locale,
		Timezone:  Timezone,
	}
}

// AcceptLanguage renders the Accept-Language header for the identity.
func (id Identity) AcceptLanguage() string {
	return strings.Join(id.Languages, ", ")
}

// Headers returns the extra HTTP headers every request of the session carries.
func (id Identity) Headers() map[string]string {
	return map[string]string{
		"Accept-Language": id.AcceptLanguage(),
	}
}

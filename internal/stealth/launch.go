package stealth

// launchArgs are Chromium switches that hide the most common automation
// markers and keep the browser stable inside containers.
var launchArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--disable-web-security",
	"--disable-features=IsolateOrigins,site-per-process",
	"--allow-running-insecure-content",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-gpu",
	"--disable-software-rasterizer",
	"--exclude-switches=enable-automation",
	"--disable-infobars",
	"--window-size=1920,1080",
	"--start-maximized",
}

// LaunchArgs returns a copy of the Chromium launch switches.
func LaunchArgs() []string {
	return append([]string(nil), launchArgs...)
}

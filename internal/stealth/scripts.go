package stealth

import (
	"encoding/json"
	"fmt"
	"strings"
)

const webdriverOverride = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

const chromeRuntimeOverride = `window.chrome = { runtime: {}, loadTimes: function() {}, csi: function() {}, app: {} };`

const permissionsOverride = `
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications' ?
		Promise.resolve({ state: Notification.permission }) :
		originalQuery(parameters)
);`

const pluginsOverride = `
Object.defineProperty(navigator, 'plugins', {
	get: () => [
		{0: {type: "application/x-google-chrome-pdf", suffixes: "pdf", description: "Portable Document Format"},
		 description: "Portable Document Format", filename: "internal-pdf-viewer", length: 1, name: "Chrome PDF Plugin"},
		{0: {type: "application/pdf", suffixes: "pdf", description: ""},
		 description: "", filename: "mhjfbmdgcfjbbpaeojofohoefgiehjai", length: 1, name: "Chrome PDF Viewer"}
	]
});`

const webglVendorOverride = `
const getParameter = WebGLRenderingContext.prototype.getParameter;
WebGLRenderingContext.prototype.getParameter = function(parameter) {
	if (parameter === 37445) { return 'Intel Inc.'; }
	if (parameter === 37446) { return 'Intel Iris OpenGL Engine'; }
	return getParameter.call(this, parameter);
};`

const screenOverride = `
Object.defineProperty(screen, 'availTop', { get: () => 0 });
Object.defineProperty(screen, 'availLeft', { get: () => 0 });`

// InitScripts returns the scripts to evaluate on every new document before
// any page script runs, in injection order.
func (id Identity) InitScripts() []string {
	langs, _ := json.Marshal(id.Languages)
	return []string{
		webdriverOverride,
		chromeRuntimeOverride,
		permissionsOverride,
		pluginsOverride,
		webglVendorOverride,
		screenOverride,
		fmt.Sprintf(`Object.defineProperty(navigator, 'languages', { get: () => %s });`, langs),
	}
}

// InitScript joins InitScripts into one source, each wrapped so a failure in
// one override does not stop the rest.
func (id Identity) InitScript() string {
	var b strings.Builder
	for _, s := range id.InitScripts() {
		b.WriteString("try {\n")
		b.WriteString(strings.TrimSpace(s))
		b.WriteString("\n} catch (e) {}\n")
	}
	return b.String()
}

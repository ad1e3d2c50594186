package browser

import (
	"regexp"
	"sort"
	"strings"
)

// Browser represents a browser family.
type Browser string

const (
	BrowserChrome  Browser = "chrome"
	BrowserFirefox Browser = "firefox"
	BrowserSafari  Browser = "safari"
	BrowserEdge    Browser = "edge"
	BrowserUnknown Browser = "unknown"
)

// UserAgent contains parsed user agent information.
type UserAgent struct {
	Raw     string
	Browser Browser
	Version string
	Mobile  bool
}

var versionPatterns = map[Browser]*regexp.Regexp{
	BrowserEdge:    regexp.MustCompile(`Edg[e]?/(\d+[\d.]*)`),
	BrowserFirefox: regexp.MustCompile(`Firefox/(\d+[\d.]*)`),
	BrowserSafari:  regexp.MustCompile(`Version/(\d+[\d.]*)`),
	BrowserChrome:  regexp.MustCompile(`(?:Headless)?Chrome/(\d+[\d.]*)`),
}

// ParseUserAgent extracts the browser family from a user agent string.
func ParseUserAgent(ua string) *UserAgent {
	parsed := &UserAgent{Raw: ua, Browser: BrowserUnknown}
	uaLower := strings.ToLower(ua)

	for _, pattern := range []string{"mobile", "android", "iphone", "ipad"} {
		if strings.Contains(uaLower, pattern) {
			parsed.Mobile = true
			break
		}
	}

	// Order matters: Edge contains Chrome, Chrome contains Safari
	switch {
	case strings.Contains(uaLower, "edg"):
		parsed.Browser = BrowserEdge
	case strings.Contains(uaLower, "firefox"):
		parsed.Browser = BrowserFirefox
	case strings.Contains(uaLower, "safari") && !strings.Contains(uaLower, "chrome"):
		parsed.Browser = BrowserSafari
	case strings.Contains(uaLower, "chrome"):
		parsed.Browser = BrowserChrome
	}

	if re, ok := versionPatterns[parsed.Browser]; ok {
		if m := re.FindStringSubmatch(ua); len(m) >= 2 {
			parsed.Version = m[1]
		}
	}
	return parsed
}

// CommonUserAgents returns user agents a virtual user can present.
func CommonUserAgents() map[string]string {
	return map[string]string{
		"chrome_windows": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"chrome_mac":     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"chrome_linux":   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"edge":           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		"mobile_chrome":  "Mozilla/5.0 (Linux; Android 10; SM-G981B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	}
}

// PresetNames lists the keys of CommonUserAgents, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(CommonUserAgents()))
	for name := range CommonUserAgents() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveUserAgent maps a preset name to its user agent. Anything else is
// returned as given, so raw strings pass through.
func ResolveUserAgent(nameOrRaw string) string {
	if ua, ok := CommonUserAgents()[nameOrRaw]; ok {
		return ua
	}
	return nameOrRaw
}

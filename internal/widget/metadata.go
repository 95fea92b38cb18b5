package widget

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/bluefermion/reviews/internal/model"
)

// Environment is the navigation state metadata is derived from.
type Environment struct {
	Location  string
	Referrer  string
	UserAgent string
}

// detector is one ranked detection rule. Rules are evaluated in slice order
// and the first whose match returns true names the result.
type detector struct {
	label   string
	match   func(ua string) bool
	version *regexp.Regexp
}

func contains(subs ...string) func(string) bool {
	return func(ua string) bool {
		for _, s := range subs {
			if strings.Contains(ua, s) {
				return true
			}
		}
		return false
	}
}

// Rules are plain signature checks and the first match wins. Chrome user
// agents also carry "Safari/", Chromium Edge carries "Chrome/" and iOS says
// "like Mac OS X", so those resolve to the earlier rule.
var browserRules = []detector{
	{"chrome", contains("Chrome/", "CriOS/"), regexp.MustCompile(`(?:Chrome|CriOS)/([\d.]+)`)},
	{"safari", contains("Safari/"), regexp.MustCompile(`Version/([\d.]+)`)},
	{"firefox", contains("Firefox/", "FxiOS/"), regexp.MustCompile(`(?:Firefox|FxiOS)/([\d.]+)`)},
	{"edge", contains("Edg/", "Edge/", "EdgA/", "EdgiOS/"), regexp.MustCompile(`Edg(?:e|A|iOS)?/([\d.]+)`)},
	{"ie", contains("MSIE ", "Trident/"), regexp.MustCompile(`(?:MSIE |rv:)([\d.]+)`)},
}

var osRules = []detector{
	{"windows", contains("Windows"), regexp.MustCompile(`Windows NT ([\d.]+)`)},
	{"mac", contains("Mac OS X", "Macintosh"), regexp.MustCompile(`Mac OS X ([\d_.]+)`)},
	{"ios", contains("iPhone", "iPad", "iPod"), regexp.MustCompile(`OS ([\d_]+)`)},
	{"android", contains("Android"), regexp.MustCompile(`Android ([\d.]+)`)},
	{"linux", contains("Linux", "X11"), nil},
}

var (
	tabletUA = regexp.MustCompile(`(?i)(tablet|ipad|playbook|silk)|(android.*)`)
	mobiUA   = regexp.MustCompile(`(?i)mobi`)
	mobileUA = regexp.MustCompile(`Mobile|iP(hone|od)|Android|BlackBerry|IEMobile|Kindle|Silk-Accelerated|(hpw|web)OS|Opera M(obi|ini)`)
)

func detect(rules []detector, ua string) (string, string) {
	for _, r := range rules {
		if !r.match(ua) {
			continue
		}
		if r.version == nil {
			return r.label, ""
		}
		m := r.version.FindStringSubmatch(ua)
		if len(m) < 2 {
			return r.label, ""
		}
		return r.label, strings.ReplaceAll(m[1], "_", ".")
	}
	return model.Unknown, ""
}

// DetectBrowser returns the browser family and best-effort version.
func DetectBrowser(ua string) (name, version string) {
	return detect(browserRules, ua)
}

// DetectOS returns the OS family and best-effort version.
func DetectOS(ua string) (name, version string) {
	return detect(osRules, ua)
}

// DetectDevice classifies ua as tablet, mobile or desktop. Android without
// a "mobi" token is a tablet.
func DetectDevice(ua string) string {
	if m := tabletUA.FindStringSubmatch(ua); m != nil {
		if m[1] != "" || !mobiUA.MatchString(m[2]) {
			return model.DeviceTablet
		}
	}
	if mobileUA.MatchString(ua) {
		return model.DeviceMobile
	}
	return model.DeviceDesktop
}

// CollectMetadata builds the submission snapshot from env. It never fails:
// an unparseable location just yields empty attribution fields.
func CollectMetadata(env Environment) model.SubmissionMetadata {
	browser, browserVersion := DetectBrowser(env.UserAgent)
	osName, osVersion := DetectOS(env.UserAgent)

	md := model.SubmissionMetadata{
		LandingPage:    env.Location,
		ReferrerURL:    env.Referrer,
		DeviceType:     DetectDevice(env.UserAgent),
		Browser:        browser,
		BrowserVersion: browserVersion,
		OS:             osName,
		OSVersion:      osVersion,
	}

	if u, err := url.Parse(env.Location); err == nil {
		q := u.Query()
		md.UTMSource = q.Get("utm_source")
		md.UTMMedium = q.Get("utm_medium")
		md.UTMCampaign = q.Get("utm_campaign")
		md.UTMTerm = q.Get("utm_term")
		md.UTMContent = q.Get("utm_content")
	}
	return md
}

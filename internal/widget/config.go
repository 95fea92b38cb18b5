package widget

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bluefermion/reviews/internal/model"
)

// DefaultDelay is how long after construction the modal appears when the host
// page does not say otherwise.
const DefaultDelay = 5 * time.Second

// MaxDelay caps the host-supplied delay. Browsers fire timers longer than
// 2^31-1 ms immediately, so larger values are clamped rather than passed on.
const MaxDelay = 24 * time.Hour

// DefaultSubmitTimeout bounds a single submission request.
const DefaultSubmitTimeout = 10 * time.Second

// Deployment carries the values fixed per deployment rather than per host page.
type Deployment struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Config is the effective configuration of one widget instance. It is fixed
// at construction.
type Config struct {
	PortalID     string
	PrimaryColor string
	Delay        time.Duration
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
}

// colorToken accepts hex colors, named colors and rgb()/hsl() functional
// notation. Anything else could terminate the CSS rule it is interpolated into.
var colorToken = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20}|(rgb|hsl)a?\([0-9.,%\s]+\))$`)

// ValidColor reports whether c can be interpolated into the stylesheet.
func ValidColor(c string) bool { return colorToken.MatchString(c) }

// ColorPattern returns the color check as a regular expression source, so
// the served embed script applies the same rule in the browser.
func ColorPattern() string { return colorToken.String() }

// ParseConfig reads the loosely typed object a host page pushes with "init".
// Unknown keys are ignored and portalId is passed through unvalidated.
func ParseConfig(raw map[string]any, d Deployment) Config {
	cfg := Config{
		PrimaryColor: model.DefaultPrimaryColor,
		Delay:        DefaultDelay,
		Endpoint:     d.Endpoint,
		APIKey:       d.APIKey,
		Timeout:      d.Timeout,
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSubmitTimeout
	}

	if v, ok := raw["portalId"]; ok {
		cfg.PortalID = stringValue(v)
	}
	if v, ok := raw["primaryColor"]; ok {
		if c := strings.TrimSpace(stringValue(v)); colorToken.MatchString(c) {
			cfg.PrimaryColor = c
		}
	}
	// delay wins over delaySeconds when both are present.
	if v, ok := raw["delaySeconds"]; ok {
		if n, ok := numberValue(v); ok && n >= 0 {
			cfg.Delay = delayFromMillis(n * 1000)
		}
	}
	if v, ok := raw["delay"]; ok {
		if n, ok := numberValue(v); ok && n >= 0 {
			cfg.Delay = delayFromMillis(n)
		}
	}
	return cfg
}

func delayFromMillis(ms float64) time.Duration {
	if ms >= float64(MaxDelay/time.Millisecond) {
		return MaxDelay
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	}
	return ""
}

func numberValue(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case float64:
		f = t
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

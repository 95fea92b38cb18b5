// Package enrich completes submission metadata with what only the server can
// see: the client address, its rough location and the request's user agent.
package enrich

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"
	"github.com/oschwald/geoip2-golang"

	"github.com/bluefermion/reviews/internal/widget"
)

// ErrBot is returned for submissions whose user agent identifies a crawler
// or other automated client.
var ErrBot = errors.New("automated submissions are not accepted")

// GeoLookup resolves an address to a city record. *geoip2.Reader satisfies it.
type GeoLookup interface {
	City(ip net.IP) (*geoip2.City, error)
}

// OpenGeoIP opens a GeoLite2/GeoIP2 City database.
func OpenGeoIP(path string) (*geoip2.Reader, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return db, nil
}

// Enricher adds server-side fields to submission metadata.
type Enricher struct {
	geo GeoLookup
	log *slog.Logger
}

// New creates an Enricher. geo may be nil, in which case location comes only
// from the CDN headers.
func New(geo GeoLookup, log *slog.Logger) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{geo: geo, log: log}
}

// Enrich returns a copy of metadata completed from r. Client-supplied values
// are kept except ip_address, user_agent and location, which always come
// from the request. Empty values are dropped so they do not overwrite
// column defaults downstream.
func (e *Enricher) Enrich(r *http.Request, metadata map[string]any) (map[string]any, error) {
	ua := r.UserAgent()
	if ua != "" && useragent.Parse(ua).Bot {
		return nil, ErrBot
	}

	out := make(map[string]any, len(metadata)+8)
	for k, v := range metadata {
		out[k] = v
	}

	// Older widget builds send the page address as "url".
	if u, ok := out["url"]; ok {
		if isEmpty(out["landing_page"]) {
			out["landing_page"] = u
		}
		delete(out, "url")
	}

	ip := ClientIP(r)
	out["ip_address"] = ip
	out["user_agent"] = ua

	loc := e.locate(r, ip)
	out["country"] = loc.Country
	out["region"] = loc.Region
	out["city"] = loc.City

	if ua != "" {
		if isEmpty(out["browser"]) {
			out["browser"], out["browser_version"] = widget.DetectBrowser(ua)
		}
		if isEmpty(out["os"]) {
			out["os"], out["os_version"] = widget.DetectOS(ua)
		}
		if isEmpty(out["device_type"]) {
			out["device_type"] = widget.DetectDevice(ua)
		}
	}

	for k, v := range out {
		if isEmpty(v) {
			delete(out, k)
		}
	}
	return out, nil
}

// Location is a best-effort client location.
type Location struct {
	Country string
	Region  string
	City    string
}

func (e *Enricher) locate(r *http.Request, ip string) Location {
	loc := Location{
		Country: r.Header.Get("CF-IPCountry"),
		Region:  r.Header.Get("CF-Region"),
		City:    r.Header.Get("CF-IPCity"),
	}
	// XX is Cloudflare's "unknown".
	if loc.Country == "XX" {
		loc.Country = ""
	}
	if loc.Country != "" || e.geo == nil {
		return loc
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() {
		return loc
	}
	record, err := e.geo.City(parsed)
	if err != nil {
		e.log.Debug("geoip lookup failed", "ip", ip, "error", err)
		return loc
	}
	return fromRecord(record)
}

func fromRecord(record *geoip2.City) Location {
	loc := Location{Country: record.Country.IsoCode}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	loc.City = record.City.Names["en"]
	return loc
}

// ClientIP returns the caller's address, preferring the proxy headers.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// Package model defines the domain entities and the wire contract shared by the
// review widget, the hosted form and the HTTP API.
//
// The submission payload types below are the bit-exact contract between the
// embeddable widget and the submission endpoint. Field names and json tags must
// not change: third-party pages run old copies of the widget script for years.
package model

import (
	"encoding/json"
	"time"
)

// Device types reported in SubmissionMetadata.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Unknown is reported for any browser or OS no detection rule matched.
const Unknown = "unknown"

// MinRating and MaxRating bound every stored rating.
const (
	MinRating = 1
	MaxRating = 5
)

// SubmissionMetadata is the attribution and device snapshot attached to a review.
// It is built immediately before each submit attempt and never cached.
type SubmissionMetadata struct {
	LandingPage    string `json:"landing_page"`
	ReferrerURL    string `json:"referrer_url"`
	DeviceType     string `json:"device_type"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version"`
	UTMSource      string `json:"utm_source"`
	UTMMedium      string `json:"utm_medium"`
	UTMCampaign    string `json:"utm_campaign"`
	UTMTerm        string `json:"utm_term"`
	UTMContent     string `json:"utm_content"`
}

// Map flattens the snapshot into the loose key/value form the storage layer keeps.
func (m SubmissionMetadata) Map() map[string]any {
	return map[string]any{
		"landing_page":    m.LandingPage,
		"referrer_url":    m.ReferrerURL,
		"device_type":     m.DeviceType,
		"browser":         m.Browser,
		"browser_version": m.BrowserVersion,
		"os":              m.OS,
		"os_version":      m.OSVersion,
		"utm_source":      m.UTMSource,
		"utm_medium":      m.UTMMedium,
		"utm_campaign":    m.UTMCampaign,
		"utm_term":        m.UTMTerm,
		"utm_content":     m.UTMContent,
	}
}

// ReviewSubmissionRequest is the body the widget POSTs to the submission endpoint.
type ReviewSubmissionRequest struct {
	PortalID   string             `json:"portalId"`
	Rating     int                `json:"rating"`
	ReviewText string             `json:"reviewText"`
	Metadata   SubmissionMetadata `json:"metadata"`
}

// SubmissionPayload is the server-side view of the same body. Rating stays a
// json.Number so non-integer values can be rejected instead of truncated, and
// metadata stays a loose map because older widget builds send extra keys.
type SubmissionPayload struct {
	PortalID   string         `json:"portalId"`
	Rating     json.Number    `json:"rating"`
	ReviewText string         `json:"reviewText"`
	Metadata   map[string]any `json:"metadata"`
}

// SuccessResponse is returned with HTTP 200 when a review was stored.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is returned with HTTP 4xx/5xx. Error carries the backend message
// verbatim; the widget matches known substrings of it.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Review is a stored review as the dashboard sees it.
type Review struct {
	ID         string         `json:"id"`
	PortalID   string         `json:"portal_id"`
	Rating     int            `json:"rating"`
	ReviewText string         `json:"review_text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	// CreatedAgo is a human readable age ("3 hours ago") filled by the API layer.
	CreatedAgo string `json:"created_ago,omitempty"`
}

// ReviewPage is one page of a filtered review listing.
type ReviewPage struct {
	Reviews    []Review `json:"reviews"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalCount int      `json:"total_count"`
	TotalPages int      `json:"total_pages"`
}

package model

import "time"

// Rating types a portal can present on the hosted form.
const (
	RatingTypeNumeric = "numeric"
	RatingTypeStars   = "stars"
	RatingTypeEmojis  = "emojis"
)

// Access levels granted to invited portal members.
const (
	AccessReader = "reader"
	AccessEditor = "editor"
	AccessAdmin  = "admin"
)

// Plans limit how many portals an owner may create.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// DefaultPrimaryColor is used whenever a portal or widget has no usable color.
const DefaultPrimaryColor = "#007bff"

// Portal is a tenant's review-collection surface. Its ID doubles as the public slug.
type Portal struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PortalSettings is the branding and behavior configuration of a portal, as
// returned by the review-details lookup keyed by slug.
type PortalSettings struct {
	PortalID          string `json:"portal_id"`
	PrimaryColor      string `json:"primary_color"`
	SecondaryColor    string `json:"secondary_color"`
	LogoURL           string `json:"logo_url,omitempty"`
	CustomCSS         string `json:"custom_css,omitempty"`
	RatingType        string `json:"rating_type"`
	RatingScale       int    `json:"rating_scale"`
	RequireTextReview bool   `json:"require_text_review"`
	ThankYouMessage   string `json:"thank_you_message,omitempty"`
	RedirectURL       string `json:"redirect_url,omitempty"`
	ModalTrigger      string `json:"modal_trigger,omitempty"`
	ModalDelaySeconds int    `json:"modal_delay_seconds"`
}

// WithDefaults fills the zero values the hosted form cannot render without.
func (s PortalSettings) WithDefaults() PortalSettings {
	if s.PrimaryColor == "" {
		s.PrimaryColor = DefaultPrimaryColor
	}
	if s.SecondaryColor == "" {
		s.SecondaryColor = "#6c757d"
	}
	if s.RatingType == "" {
		s.RatingType = RatingTypeNumeric
	}
	if s.RatingScale < 2 || s.RatingScale > MaxRating {
		s.RatingScale = MaxRating
	}
	return s
}

// PortalInvite grants an email address access to a new portal.
type PortalInvite struct {
	Email       string `json:"email"`
	AccessLevel string `json:"access_level"`
}

// CreatePortalRequest is the body of POST /api/portals.
type CreatePortalRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Invites     []PortalInvite `json:"invites"`
}

package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bluefermion/reviews/internal/enrich"
	"github.com/bluefermion/reviews/internal/events"
	"github.com/bluefermion/reviews/internal/model"
	"github.com/bluefermion/reviews/internal/repository"
	"github.com/bluefermion/reviews/internal/widget"
)

const (
	maxFormBody = 64 << 10

	msgSelectRating   = "Please select a rating"
	msgProvideReview  = "Please provide a review"
	defaultThankYou   = "We appreciate your feedback. It helps us improve our service."
	defaultShareDelay = 2 * time.Second
	defaultIframeW    = "100%"
	defaultIframeH    = 600
)

var iframeWidth = regexp.MustCompile(`^[0-9]{1,4}(px|%)?$`)

// RatingOption is one selectable value on the hosted form.
type RatingOption struct {
	Value    int
	Label    string
	Selected bool
}

type formPage struct {
	Settings       *model.PortalSettings
	PrimaryColor   template.CSS
	SecondaryColor template.CSS
	CustomCSS      template.CSS
	Action         string
	Options        []RatingOption
	Review         string
	Referrer       string
	Error          string
}

// ratingOptions lists the values 1..scale labelled for the rating type.
func ratingOptions(ratingType string, scale, selected int) []RatingOption {
	opts := make([]RatingOption, 0, scale)
	for v := 1; v <= scale; v++ {
		opts = append(opts, RatingOption{Value: v, Label: ratingLabel(ratingType, v), Selected: v == selected})
	}
	return opts
}

func ratingLabel(ratingType string, v int) string {
	switch ratingType {
	case model.RatingTypeStars:
		return strings.Repeat("★", v)
	case model.RatingTypeEmojis:
		switch {
		case v <= 2:
			return "😞"
		case v == 3:
			return "😐"
		case v == 4:
			return "😊"
		default:
			return "😃"
		}
	default:
		return strconv.Itoa(v)
	}
}

// safeColor returns c as CSS when it is a plain color token, else fallback.
func safeColor(c, fallback string) template.CSS {
	if widget.ValidColor(c) {
		return template.CSS(c)
	}
	return template.CSS(fallback)
}

// tenantCSS escapes "<" so portal CSS cannot close the style element.
func tenantCSS(css string) template.CSS {
	return template.CSS(strings.ReplaceAll(css, "<", `\3c `))
}

// newFormPage prepares the hosted form for settings. The form posts back to
// the URL it was served from so attribution query parameters survive.
func newFormPage(r *http.Request, s *model.PortalSettings) formPage {
	action := "/" + url.PathEscape(s.PortalID)
	if r.URL.RawQuery != "" {
		action += "?" + r.URL.RawQuery
	}
	return formPage{
		Settings:       s,
		PrimaryColor:   safeColor(s.PrimaryColor, model.DefaultPrimaryColor),
		SecondaryColor: safeColor(s.SecondaryColor, "#6c757d"),
		CustomCSS:      tenantCSS(s.CustomCSS),
		Action:         action,
		Options:        ratingOptions(s.RatingType, s.RatingScale, 0),
		Referrer:       r.Referer(),
	}
}

// loadSettings fetches the {slug} settings, rendering the error page itself
// on failure.
func (h *Handler) loadSettings(w http.ResponseWriter, r *http.Request, slug string) (*model.PortalSettings, bool) {
	s, err := h.settings.GetReviewDetails(r.Context(), slug)
	if errors.Is(err, repository.ErrPortalNotFound) {
		h.errors.Reject(w, r, http.StatusNotFound, "This review page does not exist.")
		return nil, false
	}
	if err != nil {
		h.errors.HandleError(w, r, http.StatusInternalServerError, err)
		return nil, false
	}
	return s, true
}

// HandleForm renders the hosted review form.
// Endpoint: GET /{slug}
func (h *Handler) HandleForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSettings(w, r, chi.URLParam(r, "slug"))
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "form.html", newFormPage(r, s))
}

// HandleFormSubmit stores a review posted from the hosted form and redirects
// to the portal's redirect URL or the thank-you page.
// Endpoint: POST /{slug}
func (h *Handler) HandleFormSubmit(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r)

	s, ok := h.loadSettings(w, r, chi.URLParam(r, "slug"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := r.ParseForm(); err != nil {
		h.errors.Reject(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}

	page := newFormPage(r, s)
	page.Review = r.PostForm.Get("review")
	page.Referrer = r.PostForm.Get("referrer")

	// -------------------------------------------------------------------------
	// 1. VALIDATION
	// -------------------------------------------------------------------------
	rating, err := strconv.Atoi(r.PostForm.Get("rating"))
	if err != nil || rating < model.MinRating || rating > s.RatingScale {
		h.metrics.Rejected(r.Context(), events.SourceHostedForm, "rating")
		page.Error = msgSelectRating
		h.render(w, r, http.StatusBadRequest, "form.html", page)
		return
	}
	page.Options = ratingOptions(s.RatingType, s.RatingScale, rating)

	text := strings.TrimSpace(page.Review)
	if s.RequireTextReview && text == "" {
		h.metrics.Rejected(r.Context(), events.SourceHostedForm, "text")
		page.Error = msgProvideReview
		h.render(w, r, http.StatusBadRequest, "form.html", page)
		return
	}

	// -------------------------------------------------------------------------
	// 2. METADATA
	// -------------------------------------------------------------------------
	md := widget.CollectMetadata(widget.Environment{
		Location:  h.opts.PublicURL + r.URL.RequestURI(),
		Referrer:  page.Referrer,
		UserAgent: r.UserAgent(),
	})
	metadata, err := h.enricher.Enrich(r, md.Map())
	if errors.Is(err, enrich.ErrBot) {
		h.metrics.Rejected(r.Context(), events.SourceHostedForm, "bot")
		h.errors.Reject(w, r, http.StatusForbidden, msgBotRejected)
		return
	}
	if err != nil {
		log.Error("failed to enrich submission", "error", err)
		metadata = md.Map()
	}

	// -------------------------------------------------------------------------
	// 3. STORE
	// -------------------------------------------------------------------------
	reviewID, err := h.store.InsertReviewWithMetadata(r.Context(), s.PortalID, text, rating, metadata)
	if err != nil {
		status := http.StatusInternalServerError
		backend := ""
		if msg, isRule := repository.AsProcedureError(err); isRule {
			status = submissionStatus(msg)
			backend = msg
		} else {
			log.Error("failed to store review", "portal_id", s.PortalID, "error", err)
		}
		h.metrics.Rejected(r.Context(), events.SourceHostedForm, "rule")
		page.Error = widget.UserMessage(&widget.SubmitError{
			Kind:    widget.Classify(backend),
			Status:  status,
			Backend: backend,
		})
		h.render(w, r, status, "form.html", page)
		return
	}

	h.accepted(r.Context(), events.ReviewSubmitted{
		ReviewID:   reviewID,
		PortalID:   s.PortalID,
		Rating:     rating,
		HasText:    text != "",
		Source:     events.SourceHostedForm,
		OccurredAt: time.Now().UTC(),
	})
	log.Info("review submitted", "review_id", reviewID, "portal_id", s.PortalID, "rating", rating, "source", events.SourceHostedForm)

	http.Redirect(w, r, redirectTarget(s, rating), http.StatusSeeOther)
}

// redirectTarget is the portal's redirect URL when it is a usable http(s)
// URL, otherwise the thank-you page.
func redirectTarget(s *model.PortalSettings, rating int) string {
	if u, err := url.Parse(strings.TrimSpace(s.RedirectURL)); err == nil && s.RedirectURL != "" {
		if u.Scheme == "http" || u.Scheme == "https" {
			return u.String()
		}
	}
	q := url.Values{}
	q.Set("rating", strconv.Itoa(rating))
	q.Set("message", s.ThankYouMessage)
	return "/thank-you?" + q.Encode()
}

type thankYouPage struct {
	Rating  int
	Filled  string
	Empty   string
	Message template.HTML
}

// HandleThankYou renders the confirmation page. The message is Markdown.
// Endpoint: GET /thank-you
func (h *Handler) HandleThankYou(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rating, err := strconv.Atoi(q.Get("rating"))
	if err != nil || rating < 0 {
		rating = 0
	}
	if rating > model.MaxRating {
		rating = model.MaxRating
	}

	message := strings.TrimSpace(q.Get("message"))
	if message == "" {
		message = defaultThankYou
	}

	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(message), &buf); err != nil {
		h.logger(r).Warn("failed to render thank-you message", "error", err)
		buf.Reset()
		buf.WriteString(template.HTMLEscapeString(message))
	}

	h.render(w, r, http.StatusOK, "thank_you.html", thankYouPage{
		Rating: rating,
		Filled: strings.Repeat("★", rating),
		Empty:  strings.Repeat("☆", model.MaxRating-rating),
		// goldmark drops raw HTML and dangerous link schemes unless WithUnsafe is set.
		Message: template.HTML(buf.String()),
	})
}

type sharePage struct {
	Portal     *model.Portal
	FormURL    string
	Snippet    string
	Iframe     string
	Color      string
	DelayMS    int64
	DelayText  string
	Width      string
	Height     int
	PreviewURL string
}

// HandleShare renders the embed instructions for a portal: the direct link,
// the widget snippet and the iframe code. color, delay (ms), width and
// height query parameters adjust the generated code.
// Endpoint: GET /portal/{id}/share
func (h *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	portal, err := h.store.GetPortal(r.Context(), id)
	if errors.Is(err, repository.ErrPortalNotFound) {
		h.errors.Reject(w, r, http.StatusNotFound, "This portal does not exist.")
		return
	}
	if err != nil {
		h.errors.HandleError(w, r, http.StatusInternalServerError, err)
		return
	}
	s, ok := h.loadSettings(w, r, id)
	if !ok {
		return
	}

	q := r.URL.Query()
	color := q.Get("color")
	if !widget.ValidColor(color) {
		color = s.PrimaryColor
	}
	delay := defaultShareDelay
	if ms, err := strconv.ParseInt(q.Get("delay"), 10, 64); err == nil && ms >= 0 {
		delay = time.Duration(ms) * time.Millisecond
	}
	width := q.Get("width")
	if !iframeWidth.MatchString(width) {
		width = defaultIframeW
	}
	height, err := strconv.Atoi(q.Get("height"))
	if err != nil || height <= 0 {
		height = defaultIframeH
	}

	formURL := h.opts.PublicURL + "/" + url.PathEscape(portal.ID)
	snippet, err := widget.Snippet(widget.SnippetOptions{
		PortalID:     portal.ID,
		PrimaryColor: color,
		Delay:        delay,
		ScriptURL:    h.opts.PublicURL + "/embed.js",
	})
	if err != nil {
		h.errors.HandleError(w, r, http.StatusInternalServerError, err)
		return
	}

	h.render(w, r, http.StatusOK, "share.html", sharePage{
		Portal:     portal,
		FormURL:    formURL,
		Snippet:    snippet,
		Iframe:     widget.IframeCode(formURL, width, height),
		Color:      color,
		DelayMS:    delay.Milliseconds(),
		DelayText:  delayText(delay),
		Width:      width,
		Height:     height,
		PreviewURL: "/widget/preview/" + url.PathEscape(portal.ID) + "?" + url.Values{"color": {color}}.Encode(),
	})
}

func delayText(d time.Duration) string {
	secs := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	if secs == "1" {
		return "1 second"
	}
	return secs + " seconds"
}

type previewPage struct {
	PortalID string
	CSS      template.CSS
	Modal    template.HTML
}

// HandlePreview shows the widget modal as a host page would see it.
// Endpoint: GET /widget/preview/{id}
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSettings(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	color := r.URL.Query().Get("color")
	if !widget.ValidColor(color) {
		color = s.PrimaryColor
	}
	css := widget.Stylesheet(color) +
		fmt.Sprintf("\n.%s { display: flex !important; opacity: 1; }\n", widget.ClassOverlay)

	h.render(w, r, http.StatusOK, "preview.html", previewPage{
		PortalID: s.PortalID,
		CSS:      template.CSS(css),
		Modal:    template.HTML(widget.ModalMarkup()),
	})
}

// Package handler implements the HTTP transport layer for the review service.
//
// Handlers parse requests, validate input, call the repository (whose
// methods carry the business rules) and format responses. The public
// submission endpoint speaks the JSON contract the embeddable widget
// depends on; the hosted form and share pages are server-rendered with
// html/template.
package handler

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/yuin/goldmark"

	"github.com/bluefermion/reviews/internal/enrich"
	"github.com/bluefermion/reviews/internal/events"
	"github.com/bluefermion/reviews/internal/logger"
	"github.com/bluefermion/reviews/internal/model"
	"github.com/bluefermion/reviews/internal/repository"
	"github.com/bluefermion/reviews/internal/telemetry"
)

//go:embed templates
var templateFiles embed.FS

// Store is the repository surface the handlers use.
type Store interface {
	InsertReviewWithMetadata(ctx context.Context, portalID, reviewText string, rating int, metadata map[string]any) (string, error)
	ListReviews(ctx context.Context, portalID string, rating, page int) (*model.ReviewPage, error)
	CreatePortal(ctx context.Context, in repository.CreatePortalInput) (string, error)
	GetPortal(ctx context.Context, id string) (*model.Portal, error)
	PortalMembers(ctx context.Context, portalID string) ([]model.PortalInvite, error)
	Ping(ctx context.Context) error
}

// SettingsStore reads and writes portal settings. The cache implements it
// in front of the repository.
type SettingsStore interface {
	GetReviewDetails(ctx context.Context, slug string) (*model.PortalSettings, error)
	UpdatePortalSettings(ctx context.Context, s model.PortalSettings) error
}

// Deps are the collaborators a Handler needs.
type Deps struct {
	Store    Store
	Settings SettingsStore
	Enricher *enrich.Enricher
	Events   events.Publisher
	Metrics  *telemetry.Metrics
	Log      *slog.Logger
}

// Options are deployment values rendered into pages and scripts.
type Options struct {
	Service string
	Version string
	// PublicURL is the externally visible base URL, without trailing slash.
	PublicURL string
	// SubmissionEndpoint is where the served widget posts reviews.
	SubmissionEndpoint string
	WidgetAPIKey       string
	SubmitTimeout      time.Duration
	JWTSecret          []byte
}

// Handler serves every HTTP route.
type Handler struct {
	store    Store
	settings SettingsStore
	enricher *enrich.Enricher
	events   events.Publisher
	metrics  *telemetry.Metrics
	log      *slog.Logger
	opts     Options

	// templates maps a page name (e.g. "form.html") to base.html cloned with
	// that page parsed into it.
	templates map[string]*template.Template
	script    []byte
	markdown  goldmark.Markdown
	errors    *ErrorHandler
}

// New builds a Handler. Template parse failures are returned rather than
// panicking so the serve command can report them.
func New(d Deps, o Options) (*Handler, error) {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	if d.Enricher == nil {
		d.Enricher = enrich.New(nil, d.Log)
	}
	if d.Metrics == nil {
		m, err := telemetry.NewMetrics(nil)
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		d.Metrics = m
	}
	if o.Service == "" {
		o.Service = "reviews"
	}

	tfs, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		return nil, err
	}

	base, err := template.New("base.html").ParseFS(tfs, "base.html")
	if err != nil {
		return nil, fmt.Errorf("parse base template: %w", err)
	}
	templates := make(map[string]*template.Template)
	for _, page := range []string{"form.html", "thank_you.html", "share.html", "preview.html"} {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		parsed, err := clone.ParseFS(tfs, page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		templates[page] = parsed
	}

	embedJS, err := texttemplate.New("embed.js.tmpl").Funcs(texttemplate.FuncMap{
		"js": texttemplate.JSEscapeString,
	}).ParseFS(tfs, "embed.js.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse embed script: %w", err)
	}
	script, err := renderScript(embedJS, o)
	if err != nil {
		return nil, err
	}

	errs, err := NewErrorHandler(tfs, d.Log)
	if err != nil {
		return nil, err
	}

	return &Handler{
		store:     d.Store,
		settings:  d.Settings,
		enricher:  d.Enricher,
		events:    d.Events,
		metrics:   d.Metrics,
		log:       d.Log,
		opts:      o,
		templates: templates,
		script:    script,
		markdown:  goldmark.New(),
		errors:    errs,
	}, nil
}

// render executes a page template. HTMX requests get only the content block.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	tmpl, ok := h.templates[name]
	if !ok {
		h.errors.HandleError(w, r, http.StatusInternalServerError, fmt.Errorf("template %s not found", name))
		return
	}

	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		h.logger(r).Error("template render failed", "template", name, "target", target, "error", err)
	}
}

func (h *Handler) logger(r *http.Request) *slog.Logger {
	return logger.FromContext(r.Context(), h.log)
}

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the {success:false,error,code} shape. code is the status
// as a string, the way the submission endpoint has always reported it.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{
		Success: false,
		Error:   message,
		Code:    strconv.Itoa(status),
	})
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, model.SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// HandleRoot returns basic metadata about the service.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": h.opts.Service,
		"version": h.opts.Version,
		"status":  "ok",
	})
}

// HandleHealth reports healthy only when the database answers.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger(r).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

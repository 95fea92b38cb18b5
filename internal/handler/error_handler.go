package handler

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/bluefermion/reviews/internal/logger"
)

// ErrorPageData holds data for the error page template.
type ErrorPageData struct {
	Title        string
	ErrorID      string
	ErrorMessage string
}

// ErrorHandler renders the HTML error page and logs each failure under a
// reference id the visitor can quote.
type ErrorHandler struct {
	tmpl *template.Template
	log  *slog.Logger
}

// NewErrorHandler parses error.html from templateFS.
func NewErrorHandler(templateFS fs.FS, log *slog.Logger) (*ErrorHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "error.html")
	if err != nil {
		return nil, fmt.Errorf("parse error template: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &ErrorHandler{tmpl: tmpl, log: log}, nil
}

// generateErrorID creates a short reference for correlating a page with logs.
func generateErrorID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("ERR-%d", time.Now().UnixNano()%1000000)
	}
	return "ERR-" + hex.EncodeToString(b)
}

// HandleError logs err and renders the error page. Server errors hide the
// underlying message from the visitor.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	errorID := generateErrorID()

	log := logger.FromContext(r.Context(), h.log).With(
		"error_id", errorID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
	)
	message := ""
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "error", err)
	} else {
		log.Info("request rejected", "error", err)
		if err != nil {
			message = err.Error()
		}
	}

	h.RenderErrorPage(w, status, errorID, message)
}

// Reject renders a client error with a message meant for the visitor.
func (h *ErrorHandler) Reject(w http.ResponseWriter, r *http.Request, status int, message string) {
	errorID := generateErrorID()
	logger.FromContext(r.Context(), h.log).Info("request rejected",
		"error_id", errorID,
		"path", r.URL.Path,
		"status", status,
		"reason", message,
	)
	h.RenderErrorPage(w, status, errorID, message)
}

// RenderErrorPage writes the error page with status.
func (h *ErrorHandler) RenderErrorPage(w http.ResponseWriter, status int, errorID, message string) {
	data := ErrorPageData{
		Title:        pageTitle(status),
		ErrorID:      errorID,
		ErrorMessage: message,
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, data); err != nil {
		h.log.Error("failed to execute error template", "error", err)
		http.Error(w, fmt.Sprintf("%s (reference %s)", data.Title, errorID), status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func pageTitle(status int) string {
	switch status {
	case http.StatusNotFound:
		return "Page not found"
	case http.StatusBadRequest:
		return "Bad request"
	case http.StatusTooManyRequests:
		return "Too many requests"
	default:
		if status >= http.StatusInternalServerError {
			return "Something went wrong"
		}
		return http.StatusText(status)
	}
}

// NotFound renders the 404 page.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
}

// Recover turns a handler panic into a logged 500 page.
func (h *ErrorHandler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.FromContext(r.Context(), h.log).Error("panic in handler",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.HandleError(w, r, http.StatusInternalServerError, fmt.Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

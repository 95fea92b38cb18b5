package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bluefermion/reviews/internal/enrich"
	"github.com/bluefermion/reviews/internal/events"
	"github.com/bluefermion/reviews/internal/model"
	"github.com/bluefermion/reviews/internal/repository"
)

// maxSubmissionBody bounds a submission request body.
const maxSubmissionBody = 64 << 10

// publishTimeout bounds how long a stored review waits on the event broker.
const publishTimeout = 2 * time.Second

// Messages returned by the submission endpoint.
const (
	msgMethodNotAllowed = "Method not allowed"
	msgMissingBody      = "Invalid request: Missing request body"
	msgMalformedBody    = "Invalid request: Malformed JSON body"
	msgMissingPortal    = "Invalid request: Missing portalId"
	msgRatingNotNumber  = "Invalid request: Rating must be a number between 1 and 5"
	msgBotRejected      = "Automated submissions are not accepted"
	msgSubmitted        = "Review submitted successfully"
	msgInternal         = "Internal server error"
)

// submissionStatus maps a failure message onto the status the widget
// expects: caller mistakes are 400, everything else 500.
func submissionStatus(message string) int {
	switch {
	case strings.HasPrefix(message, "Invalid request"),
		strings.HasPrefix(message, "Rating must be"),
		strings.HasPrefix(message, repository.MsgInvalidPortalID),
		strings.HasPrefix(message, repository.MsgInvalidMetadata):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseRating accepts an integer JSON number (or numeric string) in range.
func parseRating(n json.Number) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(n.String()))
	if err != nil || v < model.MinRating || v > model.MaxRating {
		return 0, false
	}
	return v, true
}

// isRatingDecodeError reports whether decoding failed on the rating field
// alone, e.g. a boolean or a non-numeric string.
func isRatingDecodeError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field == "rating"
	}
	return strings.Contains(err.Error(), "into Number")
}

// HandleSubmit is the public review submission endpoint the widget posts to.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	// -------------------------------------------------------------------------
	// STEP 1: Decode
	// -------------------------------------------------------------------------
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmissionBody))
	if err != nil {
		h.reject(w, r, events.SourceWidget, "body", http.StatusBadRequest, msgMalformedBody)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		h.reject(w, r, events.SourceWidget, "body", http.StatusBadRequest, msgMissingBody)
		return
	}

	var req model.SubmissionPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		if isRatingDecodeError(err) {
			h.reject(w, r, events.SourceWidget, "rating", http.StatusBadRequest, msgRatingNotNumber)
			return
		}
		h.reject(w, r, events.SourceWidget, "body", http.StatusBadRequest, msgMalformedBody)
		return
	}

	// -------------------------------------------------------------------------
	// STEP 2: Validate
	// -------------------------------------------------------------------------
	req.PortalID = strings.TrimSpace(req.PortalID)
	if req.PortalID == "" {
		h.reject(w, r, events.SourceWidget, "portal", http.StatusBadRequest, msgMissingPortal)
		return
	}
	rating, ok := parseRating(req.Rating)
	if !ok {
		h.reject(w, r, events.SourceWidget, "rating", http.StatusBadRequest, msgRatingNotNumber)
		return
	}

	// -------------------------------------------------------------------------
	// STEP 3: Enrich with server-side metadata
	// -------------------------------------------------------------------------
	metadata, err := h.enricher.Enrich(r, req.Metadata)
	if errors.Is(err, enrich.ErrBot) {
		h.reject(w, r, events.SourceWidget, "bot", http.StatusForbidden, msgBotRejected)
		return
	}
	if err != nil {
		log.Error("failed to enrich submission", "error", err)
		metadata = req.Metadata
	}

	// -------------------------------------------------------------------------
	// STEP 4: Store
	// -------------------------------------------------------------------------
	reviewID, err := h.store.InsertReviewWithMetadata(r.Context(), req.PortalID, req.ReviewText, rating, metadata)
	if err != nil {
		msg, isRule := repository.AsProcedureError(err)
		if !isRule {
			log.Error("failed to store review", "portal_id", req.PortalID, "error", err)
			h.reject(w, r, events.SourceWidget, "storage", http.StatusInternalServerError, msgInternal)
			return
		}
		h.reject(w, r, events.SourceWidget, "rule", submissionStatus(msg), msg)
		return
	}

	h.accepted(r.Context(), events.ReviewSubmitted{
		ReviewID:   reviewID,
		PortalID:   req.PortalID,
		Rating:     rating,
		HasText:    strings.TrimSpace(req.ReviewText) != "",
		Source:     events.SourceWidget,
		OccurredAt: time.Now().UTC(),
	})
	log.Info("review submitted", "review_id", reviewID, "portal_id", req.PortalID, "rating", rating)

	writeSuccess(w, http.StatusOK, msgSubmitted, map[string]string{"review_id": reviewID})
}

// reject records the refusal and writes the error body.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, source, reason string, status int, message string) {
	h.metrics.Rejected(r.Context(), source, reason)
	writeError(w, status, message)
}

// accepted records a stored review and publishes its event. The publish is
// detached from the request so a client disconnect does not drop it.
func (h *Handler) accepted(ctx context.Context, ev events.ReviewSubmitted) {
	h.metrics.Accepted(ctx, ev.Source, ev.Rating)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	events.Notify(pubCtx, h.events, h.log, ev)
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/bluefermion/reviews/internal/middleware"
	"github.com/bluefermion/reviews/internal/model"
	"github.com/bluefermion/reviews/internal/repository"
	"github.com/bluefermion/reviews/internal/widget"
)

const maxPortalBody = 256 << 10

// PortalDetails is the dashboard view of one portal.
type PortalDetails struct {
	Portal   *model.Portal         `json:"portal"`
	Members  []model.PortalInvite  `json:"members"`
	Settings *model.PortalSettings `json:"settings"`
}

// HandleCreatePortal creates a portal owned by the caller.
func (h *Handler) HandleCreatePortal(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authorization header required")
		return
	}

	var req model.CreatePortalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPortalBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	id, err := h.store.CreatePortal(r.Context(), repository.CreatePortalInput{
		OwnerID:     caller.UserID,
		Plan:        caller.Plan,
		Name:        req.Name,
		Description: req.Description,
		Invites:     req.Invites,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.metrics.PortalsCreated.Add(r.Context(), 1)
	h.logger(r).Info("portal created", "portal_id", id, "owner_id", caller.UserID, "invites", len(req.Invites))
	writeSuccess(w, http.StatusCreated, "Portal created successfully", map[string]string{"portal_id": id})
}

// HandleGetPortal returns a portal with its members and settings.
func (h *Handler) HandleGetPortal(w http.ResponseWriter, r *http.Request) {
	portal, ok := h.ownedPortal(w, r)
	if !ok {
		return
	}

	members, err := h.store.PortalMembers(r.Context(), portal.ID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	settings, err := h.settings.GetReviewDetails(r.Context(), portal.ID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PortalDetails{Portal: portal, Members: members, Settings: settings})
}

// HandleUpdateSettings replaces a portal's settings and returns the stored
// values with defaults applied.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	portal, ok := h.ownedPortal(w, r)
	if !ok {
		return
	}

	var s model.PortalSettings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPortalBody)).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	s.PortalID = portal.ID

	for _, c := range []string{s.PrimaryColor, s.SecondaryColor} {
		if c != "" && !widget.ValidColor(c) {
			writeError(w, http.StatusBadRequest, "Invalid color: "+c)
			return
		}
	}

	if err := h.settings.UpdatePortalSettings(r.Context(), s); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	updated, err := h.settings.GetReviewDetails(r.Context(), portal.ID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Settings updated", updated)
}

// HandleListReviews returns one page of a portal's reviews, optionally
// filtered to a single rating.
func (h *Handler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	portal, ok := h.ownedPortal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	rating, err := queryInt(q.Get("rating"), 0)
	if err != nil || rating < 0 || rating > model.MaxRating {
		writeError(w, http.StatusBadRequest, "Invalid rating filter")
		return
	}
	page, err := queryInt(q.Get("page"), 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "Invalid page")
		return
	}

	result, err := h.store.ListReviews(r.Context(), portal.ID, rating, page)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	for i := range result.Reviews {
		result.Reviews[i].CreatedAgo = humanize.Time(result.Reviews[i].CreatedAt)
	}
	writeJSON(w, http.StatusOK, result)
}

// HandlePublicSettings is the unauthenticated review-details lookup the
// hosted form and widget use to brand themselves.
func (h *Handler) HandlePublicSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetReviewDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ownedPortal loads the {id} portal and checks the caller owns it. It
// writes the error response itself when it returns false.
func (h *Handler) ownedPortal(w http.ResponseWriter, r *http.Request) (*model.Portal, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authorization header required")
		return nil, false
	}

	portal, err := h.store.GetPortal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return nil, false
	}
	if portal.OwnerID != caller.UserID {
		writeError(w, http.StatusForbidden, "You do not have access to this portal")
		return nil, false
	}
	return portal, true
}

// writeStoreError maps repository errors onto API responses.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrPortalNotFound) {
		writeError(w, http.StatusNotFound, "Portal not found")
		return
	}
	if msg, ok := repository.AsProcedureError(err); ok {
		status := http.StatusBadRequest
		if msg == repository.MsgFreePlanLimit {
			status = http.StatusForbidden
		}
		writeError(w, status, msg)
		return
	}
	h.logger(r).Error("repository call failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, msgInternal)
}

func queryInt(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

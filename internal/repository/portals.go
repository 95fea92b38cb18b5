package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/bluefermion/reviews/internal/model"
)

// CreatePortalInput is everything create_portal needs from the caller.
type CreatePortalInput struct {
	OwnerID     string
	Plan        string
	Name        string
	Description string
	Invites     []model.PortalInvite
}

// CreatePortal creates a portal with default settings and its invited
// members, enforcing the owner's plan limit. It returns the portal id, which
// is also the portal's public slug.
func (r *SQLRepository) CreatePortal(ctx context.Context, in CreatePortalInput) (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", procErr(MsgPortalNameNeeded)
	}

	invites, err := normalizeInvites(in.Invites)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := r.now()
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		if in.Plan == "" || in.Plan == model.PlanFree {
			var owned int
			if err := r.queryRow(ctx, tx, `SELECT COUNT(*) FROM portals WHERE owner_id = ?`, in.OwnerID).Scan(&owned); err != nil {
				return fmt.Errorf("failed to count portals: %w", err)
			}
			if owned >= 1 {
				return procErr(MsgFreePlanLimit)
			}
		}

		if _, err := r.exec(ctx, tx,
			`INSERT INTO portals (id, name, description, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, name, strings.TrimSpace(in.Description), in.OwnerID, now,
		); err != nil {
			return fmt.Errorf("failed to insert portal: %w", err)
		}

		if _, err := r.exec(ctx, tx,
			`INSERT INTO portal_settings (portal_id, updated_at) VALUES (?, ?)`, id, now,
		); err != nil {
			return fmt.Errorf("failed to insert portal settings: %w", err)
		}

		for _, inv := range invites {
			if _, err := r.exec(ctx, tx,
				`INSERT INTO portal_members (portal_id, email, access_level, created_at) VALUES (?, ?, ?, ?)`,
				id, inv.Email, inv.AccessLevel, now,
			); err != nil {
				return fmt.Errorf("failed to insert portal member: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// normalizeInvites drops blank rows, lowercases emails and rejects invalid
// or duplicate addresses and unknown access levels.
func normalizeInvites(in []model.PortalInvite) ([]model.PortalInvite, error) {
	seen := make(map[string]bool, len(in))
	out := make([]model.PortalInvite, 0, len(in))
	for _, inv := range in {
		email := strings.ToLower(strings.TrimSpace(inv.Email))
		if email == "" {
			continue
		}
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return nil, procErr(MsgInvalidEmail, inv.Email)
		}
		if seen[email] {
			return nil, procErr(MsgDuplicateEmail, email)
		}
		seen[email] = true

		level := inv.AccessLevel
		if level == "" {
			level = model.AccessReader
		}
		switch level {
		case model.AccessReader, model.AccessEditor, model.AccessAdmin:
		default:
			return nil, procErr(MsgInvalidAccess, level)
		}
		out = append(out, model.PortalInvite{Email: email, AccessLevel: level})
	}
	return out, nil
}

// GetPortal returns a portal by id.
func (r *SQLRepository) GetPortal(ctx context.Context, id string) (*model.Portal, error) {
	p := &model.Portal{}
	err := r.queryRow(ctx, r.db,
		`SELECT id, name, description, owner_id, created_at FROM portals WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPortalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portal: %w", err)
	}
	return p, nil
}

// PortalMembers lists the invited members of a portal.
func (r *SQLRepository) PortalMembers(ctx context.Context, portalID string) ([]model.PortalInvite, error) {
	rows, err := r.query(ctx, r.db,
		`SELECT email, access_level FROM portal_members WHERE portal_id = ? ORDER BY email`, portalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portal members: %w", err)
	}
	defer rows.Close()

	members := []model.PortalInvite{}
	for rows.Next() {
		var m model.PortalInvite
		if err := rows.Scan(&m.Email, &m.AccessLevel); err != nil {
			return nil, fmt.Errorf("failed to scan portal member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetReviewDetails returns the branding and behavior settings of the portal
// identified by slug, with defaults applied.
func (r *SQLRepository) GetReviewDetails(ctx context.Context, slug string) (*model.PortalSettings, error) {
	s := model.PortalSettings{}
	err := r.queryRow(ctx, r.db, `
	SELECT
		portal_id, primary_color, secondary_color, logo_url, custom_css,
		rating_type, rating_scale, require_text_review,
		thank_you_message, redirect_url, modal_trigger, modal_delay_seconds
	FROM portal_settings WHERE portal_id = ?`, slug,
	).Scan(
		&s.PortalID, &s.PrimaryColor, &s.SecondaryColor, &s.LogoURL, &s.CustomCSS,
		&s.RatingType, &s.RatingScale, &s.RequireTextReview,
		&s.ThankYouMessage, &s.RedirectURL, &s.ModalTrigger, &s.ModalDelaySeconds,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPortalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review details: %w", err)
	}
	s = s.WithDefaults()
	return &s, nil
}

// UpdatePortalSettings replaces a portal's settings.
func (r *SQLRepository) UpdatePortalSettings(ctx context.Context, s model.PortalSettings) error {
	s = s.WithDefaults()
	switch s.RatingType {
	case model.RatingTypeNumeric, model.RatingTypeStars, model.RatingTypeEmojis:
	default:
		return procErr("Invalid rating type", s.RatingType)
	}
	if s.ModalDelaySeconds < 0 {
		return procErr("Modal delay must not be negative")
	}

	res, err := r.exec(ctx, r.db, `
	UPDATE portal_settings SET
		primary_color = ?, secondary_color = ?, logo_url = ?, custom_css = ?,
		rating_type = ?, rating_scale = ?, require_text_review = ?,
		thank_you_message = ?, redirect_url = ?, modal_trigger = ?, modal_delay_seconds = ?,
		updated_at = ?
	WHERE portal_id = ?`,
		s.PrimaryColor, s.SecondaryColor, s.LogoURL, s.CustomCSS,
		s.RatingType, s.RatingScale, s.RequireTextReview,
		s.ThankYouMessage, s.RedirectURL, s.ModalTrigger, s.ModalDelaySeconds,
		r.now(), s.PortalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update portal settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update portal settings: %w", err)
	}
	if n == 0 {
		return ErrPortalNotFound
	}
	return nil
}

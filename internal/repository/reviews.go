package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/bluefermion/reviews/internal/model"
)

// ReviewsPerPage is the dashboard listing page size.
const ReviewsPerPage = 10

// allowedMetadata is the whitelist of keys a review's metadata may carry.
var allowedMetadata = map[string]bool{
	"ip_address":      true,
	"user_agent":      true,
	"country":         true,
	"region":          true,
	"city":            true,
	"referrer_url":    true,
	"landing_page":    true,
	"utm_source":      true,
	"utm_medium":      true,
	"utm_campaign":    true,
	"utm_term":        true,
	"utm_content":     true,
	"device_type":     true,
	"browser":         true,
	"browser_version": true,
	"os":              true,
	"os_version":      true,
}

// InsertReviewWithMetadata stores a review after checking that the portal
// exists, the rating is in range and every metadata key is whitelisted.
// It returns the new review's id.
func (r *SQLRepository) InsertReviewWithMetadata(ctx context.Context, portalID, reviewText string, rating int, metadata map[string]any) (string, error) {
	if rating < model.MinRating || rating > model.MaxRating {
		return "", procErr(MsgRatingRange)
	}

	var rejected []string
	for k := range metadata {
		if !allowedMetadata[k] {
			rejected = append(rejected, k)
		}
	}
	if len(rejected) > 0 {
		sort.Strings(rejected)
		return "", procErr(MsgInvalidMetadata, rejected...)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	id := uuid.NewString()
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := r.portalExists(ctx, tx, portalID)
		if err != nil {
			return err
		}
		if !exists {
			return procErr(MsgInvalidPortalID)
		}

		_, err = r.exec(ctx, tx,
			`INSERT INTO reviews (id, portal_id, rating, review_text, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, portalID, rating, strings.TrimSpace(reviewText), string(encoded), r.now(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert review: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListReviews returns one page (1-based) of a portal's reviews, newest first.
// A rating of 0 means all ratings.
func (r *SQLRepository) ListReviews(ctx context.Context, portalID string, rating, page int) (*model.ReviewPage, error) {
	if page < 1 {
		page = 1
	}

	where := `WHERE portal_id = ?`
	args := []any{portalID}
	if rating >= model.MinRating && rating <= model.MaxRating {
		where += ` AND rating = ?`
		args = append(args, rating)
	}

	var total int
	if err := r.queryRow(ctx, r.db, `SELECT COUNT(*) FROM reviews `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	rows, err := r.query(ctx, r.db,
		`SELECT id, portal_id, rating, review_text, metadata, created_at FROM reviews `+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, ReviewsPerPage, (page-1)*ReviewsPerPage)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	result := &model.ReviewPage{
		Reviews:    []model.Review{},
		Page:       page,
		PerPage:    ReviewsPerPage,
		TotalCount: total,
		TotalPages: (total + ReviewsPerPage - 1) / ReviewsPerPage,
	}
	for rows.Next() {
		var rev model.Review
		var metadata string
		if err := rows.Scan(&rev.ID, &rev.PortalID, &rev.Rating, &rev.ReviewText, &metadata, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &rev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of review %s: %w", rev.ID, err)
			}
		}
		result.Reviews = append(result.Reviews, rev)
	}
	return result, rows.Err()
}

func (r *SQLRepository) portalExists(ctx context.Context, q queryer, portalID string) (bool, error) {
	var one int
	err := r.queryRow(ctx, q, `SELECT 1 FROM portals WHERE id = ?`, portalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up portal: %w", err)
	}
	return true, nil
}

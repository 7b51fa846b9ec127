package review

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bikecatalog/catalog-service/internal/catalog"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// ScrapedBike is one scraped_bikes_review row, joined with the canonical
// bicycle it was matched to (if any).
type ScrapedBike struct {
	ReviewID       int64           `json:"review_id"`
	BrandID        *int64          `json:"brand_id"`
	BrandName      *string         `json:"brand_name"`
	RawData        json.RawMessage `json:"raw_data"`
	ScrapedAt      time.Time       `json:"scraped_at"`
	Status         Status          `json:"review_status"`
	ReviewerID     *string         `json:"reviewer_id"`
	ReviewNotes    *string         `json:"review_notes"`
	MatchingBikeID *int64          `json:"matching_bike_id"`
	ReviewedAt     *time.Time      `json:"reviewed_at"`
	MatchedBike    *MatchedBike    `json:"matched_bike"`
}

// MatchedBike is the canonical counterpart shown beside a scraped record.
type MatchedBike struct {
	Name       string                                `json:"name"`
	Type       *string                               `json:"type"`
	ModelYear  *int                                  `json:"model_year"`
	Components map[catalog.Category]ComponentSummary `json:"components"`
}

// ComponentSummary is the current name/weight/material of one component.
type ComponentSummary struct {
	Name     *string  `json:"name"`
	Weight   *float64 `json:"weight"`
	Material *string  `json:"material"`
}

// Decision is a reviewer's verdict on one record.
type Decision struct {
	ReviewID       int64     `json:"review_id"`
	Status         Status    `json:"review_status"`
	ReviewerID     *string   `json:"reviewer_id"`
	Notes          *string   `json:"review_notes"`
	MatchingBikeID *int64    `json:"matching_bike_id"`
	ReviewedAt     time.Time `json:"reviewed_at"`
}

// QueueStats counts review records per status.
type QueueStats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

// ─── Store boundary ──────────────────────────────────────────────────────────

// Store is the catalog store as seen by the reconciliation engine.
type Store interface {
	// ListScraped returns every review record with its matched bicycle.
	ListScraped(ctx context.Context) ([]ScrapedBike, error)
	// SetDecision writes d atomically and returns the status it replaced.
	// It returns ErrNotFound when the record does not exist.
	SetDecision(ctx context.Context, d Decision) (Status, error)
	// GetStatus returns ErrNotFound when the record does not exist.
	GetStatus(ctx context.Context, reviewID int64) (Status, error)
	// DeleteRejected deletes the record only if its status is rejected.
	DeleteRejected(ctx context.Context, reviewID int64) (bool, error)
	// CountByStatus counts records per status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// WithTx runs fn in one transaction: committed when fn returns nil, rolled
	// back otherwise (including on panic). The connection is held only for the
	// duration of fn.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of statements the apply-changes path runs inside WithTx.
type Tx interface {
	BicycleExists(ctx context.Context, bikeID int64) (bool, error)
	// UpdateBasic applies coalesce-with-existing to name, type and model_year.
	UpdateBasic(ctx context.Context, bikeID int64, b BasicChanges) error
	// FindComponent returns the component of bikeID in category, if any.
	FindComponent(ctx context.Context, bikeID int64, category catalog.Category) (int64, bool, error)
	// UpdateComponent applies coalesce-with-existing to the detail row.
	UpdateComponent(ctx context.Context, componentID int64, category catalog.Category, c NormalizedComponent) error
	// InsertComponent creates the component and its detail row.
	InsertComponent(ctx context.Context, bikeID int64, category catalog.Category, c NormalizedComponent) (int64, error)
}

// ─── Errors ──────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a review record or bicycle does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidState is returned when the lifecycle forbids the operation.
var ErrInvalidState = errors.New("operation not permitted in current review state")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"bikecatalog/catalog-service/internal/catalog"
	"bikecatalog/catalog-service/internal/events"
	"bikecatalog/catalog-service/internal/logging"
)

// ─── Service ─────────────────────────────────────────────────────────────────

// Service encapsulates the reconciliation workflow.
// It has no dependency on net/http and is shared by the HTTP and gRPC transports.
type Service struct {
	store Store
	pub   events.Publisher
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for review timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a configured Service. pub may be nil.
func NewService(store Store, pub events.Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	s := &Service{store: store, pub: pub, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ─── Listing ─────────────────────────────────────────────────────────────────

// ListScraped returns the review queue: pending first, then approved, then the
// rest, newest scrape first within each group. Empty-object payloads are
// reported as null.
func (s *Service) ListScraped(ctx context.Context) ([]ScrapedBike, error) {
	recs, err := s.store.ListScraped(ctx)
	if err != nil {
		return nil, fmt.Errorf("listScraped: %w", err)
	}

	for i := range recs {
		if isEmptyPayload(recs[i].RawData) {
			recs[i].RawData = nil
		}
	}
	SortQueue(recs)
	return recs, nil
}

// SortQueue orders records for the review queue in place.
func SortQueue(recs []ScrapedBike) {
	sort.SliceStable(recs, func(i, j int) bool {
		ri, rj := queueRank(recs[i].Status), queueRank(recs[j].Status)
		if ri != rj {
			return ri < rj
		}
		return recs[i].ScrapedAt.After(recs[j].ScrapedAt)
	})
}

func isEmptyPayload(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil && len(obj) == 0
}

// ─── Status transition ───────────────────────────────────────────────────────

// DecisionInput is the caller's side of SetReviewStatus.
type DecisionInput struct {
	Status         string  `json:"status"`
	ReviewerID     *string `json:"reviewer_id"`
	Notes          *string `json:"notes"`
	MatchingBikeID *int64  `json:"matching_bike_id"`
}

// SetReviewStatus records a reviewer decision. Any status of the enumeration
// is accepted; a move against the lifecycle is logged but applied.
// Returns ErrNotFound if the record does not exist.
func (s *Service) SetReviewStatus(ctx context.Context, reviewID int64, in DecisionInput) (*Decision, error) {
	status, err := ParseStatus(in.Status)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	d := Decision{
		ReviewID:       reviewID,
		Status:         status,
		ReviewerID:     in.ReviewerID,
		Notes:          in.Notes,
		MatchingBikeID: in.MatchingBikeID,
		ReviewedAt:     s.now().UTC(),
	}
	prev, err := s.store.SetDecision(ctx, d)
	if err != nil {
		return nil, err
	}

	if prev != status && !IsTransitionAllowed(prev, status) {
		logging.FromContext(ctx).Warn().
			Int64("review_id", reviewID).
			Str("from", string(prev)).
			Str("to", string(status)).
			Msg("review status moved against the lifecycle")
	}

	data := map[string]any{
		"reviewId": reviewID,
		"from":     string(prev),
		"to":       string(status),
	}
	if d.MatchingBikeID != nil {
		data["matchingBikeId"] = *d.MatchingBikeID
	}
	s.publish(ctx, events.ReviewDecided, data)

	return &d, nil
}

// DeleteReview irrevocably removes a rejected record.
// Returns ErrNotFound if it does not exist and ErrInvalidState if it is not
// rejected.
func (s *Service) DeleteReview(ctx context.Context, reviewID int64) error {
	status, err := s.store.GetStatus(ctx, reviewID)
	if err != nil {
		return err
	}
	if !CanDelete(status) {
		return fmt.Errorf("%w: review %d is %s, only rejected reviews can be deleted",
			ErrInvalidState, reviewID, status)
	}

	deleted, err := s.store.DeleteRejected(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("deleteReview: %w", err)
	}
	if !deleted {
		// The record changed between the check and the delete.
		status, err := s.store.GetStatus(ctx, reviewID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: review %d is %s", ErrInvalidState, reviewID, status)
	}

	s.publish(ctx, events.ReviewDeleted, map[string]any{"reviewId": reviewID})
	return nil
}

// ─── Apply approved changes ──────────────────────────────────────────────────

// ApplyResult confirms an applied change set.
type ApplyResult struct {
	BikeID             int64 `json:"bike_id"`
	ComponentsApplied  int   `json:"components_applied"`
	ComponentsSkipped  int   `json:"components_skipped"`
	BasicFieldsUpdated bool  `json:"basic_updated"`
}

// ApplyChanges applies an approved change set to one bicycle in a single
// transaction. Components with an unknown category are skipped with a
// warning; any store error rolls everything back.
// Returns ErrNotFound if the bicycle does not exist.
func (s *Service) ApplyChanges(ctx context.Context, bikeID int64, changes Changes) (*ApplyResult, error) {
	log := logging.FromContext(ctx)
	res := ApplyResult{BikeID: bikeID}

	keys := make([]string, 0, len(changes.Components))
	for k := range changes.Components {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	err := s.store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.BicycleExists(ctx, bikeID)
		if err != nil {
			return fmt.Errorf("check bicycle: %w", err)
		}
		if !ok {
			return ErrNotFound
		}

		if !changes.Basic.Empty() {
			if err := tx.UpdateBasic(ctx, bikeID, *changes.Basic); err != nil {
				return fmt.Errorf("update basic fields: %w", err)
			}
			res.BasicFieldsUpdated = true
		}

		for _, key := range keys {
			n := Normalize(ctx, changes.Components[key])

			category, err := catalog.ParseCategory(n.Category)
			if err != nil {
				log.Warn().
					Int64("bike_id", bikeID).
					Str("key", key).
					Str("category", n.Category).
					Msg("skipping component with unknown category")
				res.ComponentsSkipped++
				continue
			}

			if err := upsertComponent(ctx, tx, bikeID, category, n); err != nil {
				return fmt.Errorf("component %q (%s): %w", key, category, err)
			}
			res.ComponentsApplied++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.BicycleUpdated, map[string]any{
		"bikeId":            bikeID,
		"componentsApplied": res.ComponentsApplied,
		"componentsSkipped": res.ComponentsSkipped,
	})
	return &res, nil
}

// upsertComponent keeps at most one component per (bicycle, category).
func upsertComponent(ctx context.Context, tx Tx, bikeID int64, category catalog.Category, n NormalizedComponent) error {
	id, found, err := tx.FindComponent(ctx, bikeID, category)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}
	if found {
		if err := tx.UpdateComponent(ctx, id, category, n); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return nil
	}
	if _, err := tx.InsertComponent(ctx, bikeID, category, n); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// ─── Queue stats ─────────────────────────────────────────────────────────────

// QueueStats counts review records per status.
func (s *Service) QueueStats(ctx context.Context) (*QueueStats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("queueStats: %w", err)
	}
	st := QueueStats{
		Pending:  counts[StatusPending],
		Approved: counts[StatusApproved],
		Rejected: counts[StatusRejected],
	}
	for _, n := range counts {
		st.Total += n
	}
	return &st, nil
}

// publish emits an event after a successful write (non-fatal).
func (s *Service) publish(ctx context.Context, eventType string, data map[string]any) {
	if err := s.pub.Publish(ctx, eventType, data); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

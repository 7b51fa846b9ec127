// Package reviewtest provides an in-memory review.Store for tests.
package reviewtest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"bikecatalog/catalog-service/internal/catalog"
	"bikecatalog/catalog-service/internal/review"
)

// ErrInjected is a convenient error for Hook to return.
var ErrInjected = errors.New("injected storage failure")

// Bicycle is the stored row of a canonical bicycle.
type Bicycle struct {
	ID        int64
	Name      string
	Type      *string
	ModelYear *int
}

// Component is a component row merged with its detail row.
type Component struct {
	ID       int64
	BikeID   int64
	Category catalog.Category
	Name     *string
	Weight   *float64
	Material *string
}

// Store is a review.Store kept in maps. WithTx holds the lock for the whole
// callback and restores a snapshot when the callback fails or panics.
type Store struct {
	mu         sync.Mutex
	bikes      map[int64]Bicycle
	components map[int64]Component
	reviews    map[int64]review.ScrapedBike
	nextCompID int64

	// Hook, when set, runs before every write inside a transaction. A non-nil
	// return aborts that write with the returned error.
	Hook func(op string, category catalog.Category) error
	// Err, when set, is returned by every non-transactional call.
	Err error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		bikes:      map[int64]Bicycle{},
		components: map[int64]Component{},
		reviews:    map[int64]review.ScrapedBike{},
		nextCompID: 1000,
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// ─── Fixtures ────────────────────────────────────────────────────────────────

// AddBicycle stores b.
func (s *Store) AddBicycle(b Bicycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bikes[b.ID] = b
}

// AddComponent stores c, assigning an ID when c.ID is zero.
func (s *Store) AddComponent(c Component) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextCompID++
		c.ID = s.nextCompID
	}
	s.components[c.ID] = c
	return c.ID
}

// AddReview stores r.
func (s *Store) AddReview(r review.ScrapedBike) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.ReviewID] = r
}

// ─── Lookups ─────────────────────────────────────────────────────────────────

// Bicycle returns the stored bicycle.
func (s *Store) Bicycle(id int64) (Bicycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bikes[id]
	return b, ok
}

// Components returns every component of bikeID in category.
func (s *Store) Components(bikeID int64, category catalog.Category) []Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Component
	for _, c := range s.components {
		if c.BikeID == bikeID && c.Category == category {
			out = append(out, c)
		}
	}
	return out
}

// Review returns the stored review record.
func (s *Store) Review(id int64) (review.ScrapedBike, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	return r, ok
}

// ─── review.Store ────────────────────────────────────────────────────────────

// ListScraped returns the records in map order; ordering is the service's job.
func (s *Store) ListScraped(_ context.Context) ([]review.ScrapedBike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	out := make([]review.ScrapedBike, 0, len(s.reviews))
	for _, r := range s.reviews {
		r.MatchedBike = nil
		if r.MatchingBikeID != nil {
			if b, ok := s.bikes[*r.MatchingBikeID]; ok {
				m := &review.MatchedBike{
					Name:       b.Name,
					Type:       b.Type,
					ModelYear:  b.ModelYear,
					Components: map[catalog.Category]review.ComponentSummary{},
				}
				for _, c := range s.components {
					if c.BikeID == b.ID {
						m.Components[c.Category] = review.ComponentSummary{
							Name: c.Name, Weight: c.Weight, Material: c.Material,
						}
					}
				}
				r.MatchedBike = m
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) SetDecision(_ context.Context, d review.Decision) (review.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	r, ok := s.reviews[d.ReviewID]
	if !ok {
		return "", review.ErrNotFound
	}
	if d.MatchingBikeID != nil {
		if _, ok := s.bikes[*d.MatchingBikeID]; !ok {
			return "", fmt.Errorf("%w: matching bicycle %d", review.ErrNotFound, *d.MatchingBikeID)
		}
	}
	prev := r.Status
	at := d.ReviewedAt
	r.Status = d.Status
	r.ReviewerID = d.ReviewerID
	r.ReviewNotes = d.Notes
	r.MatchingBikeID = d.MatchingBikeID
	r.ReviewedAt = &at
	s.reviews[d.ReviewID] = r
	return prev, nil
}

func (s *Store) GetStatus(_ context.Context, reviewID int64) (review.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	r, ok := s.reviews[reviewID]
	if !ok {
		return "", review.ErrNotFound
	}
	return r.Status, nil
}

func (s *Store) DeleteRejected(_ context.Context, reviewID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	r, ok := s.reviews[reviewID]
	if !ok || r.Status != review.StatusRejected {
		return false, nil
	}
	delete(s.reviews, reviewID)
	return true, nil
}

func (s *Store) CountByStatus(_ context.Context) (map[review.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := map[review.Status]int{}
	for _, r := range s.reviews {
		out[r.Status]++
	}
	return out, nil
}

func (s *Store) WithTx(_ context.Context, fn func(review.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bikes := maps.Clone(s.bikes)
	comps := maps.Clone(s.components)
	next := s.nextCompID
	defer func() {
		if p := recover(); p != nil {
			s.bikes, s.components, s.nextCompID = bikes, comps, next
			panic(p)
		}
		if err != nil {
			s.bikes, s.components, s.nextCompID = bikes, comps, next
		}
	}()

	return fn(&tx{s: s})
}

// ─── review.Tx ───────────────────────────────────────────────────────────────

// tx runs with s.mu held by WithTx.
type tx struct{ s *Store }

func (t *tx) hook(op string, category catalog.Category) error {
	if t.s.Hook == nil {
		return nil
	}
	return t.s.Hook(op, category)
}

func (t *tx) BicycleExists(_ context.Context, bikeID int64) (bool, error) {
	_, ok := t.s.bikes[bikeID]
	return ok, nil
}

func (t *tx) UpdateBasic(_ context.Context, bikeID int64, b review.BasicChanges) error {
	if err := t.hook("update_basic", ""); err != nil {
		return err
	}
	bike := t.s.bikes[bikeID]
	if v := b.Name.Ptr(); v != nil {
		bike.Name = *v
	}
	if v := b.Type.Ptr(); v != nil {
		bike.Type = v
	}
	if v := b.ModelYear.Ptr(); v != nil {
		bike.ModelYear = v
	}
	t.s.bikes[bikeID] = bike
	return nil
}

func (t *tx) FindComponent(_ context.Context, bikeID int64, category catalog.Category) (int64, bool, error) {
	var found int64
	for id, c := range t.s.components {
		if c.BikeID == bikeID && c.Category == category && (found == 0 || id < found) {
			found = id
		}
	}
	return found, found != 0, nil
}

func (t *tx) UpdateComponent(_ context.Context, componentID int64, category catalog.Category, n review.NormalizedComponent) error {
	if err := t.hook("update_component", category); err != nil {
		return err
	}
	c := t.s.components[componentID]
	if n.Name != nil {
		c.Name = n.Name
	}
	if n.Weight != nil {
		c.Weight = n.Weight
	}
	if n.Material != nil {
		c.Material = n.Material
	}
	t.s.components[componentID] = c
	return nil
}

func (t *tx) InsertComponent(_ context.Context, bikeID int64, category catalog.Category, n review.NormalizedComponent) (int64, error) {
	if err := t.hook("insert_component", category); err != nil {
		return 0, err
	}
	t.s.nextCompID++
	id := t.s.nextCompID
	t.s.components[id] = Component{
		ID:       id,
		BikeID:   bikeID,
		Category: category,
		Name:     n.Name,
		Weight:   n.Weight,
		Material: n.Material,
	}
	return id, nil
}

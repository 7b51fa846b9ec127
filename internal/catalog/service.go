package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"bikecatalog/catalog-service/internal/db"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Bicycle is a canonical catalog entry.
type Bicycle struct {
	ID             int64           `json:"bike_id"`
	Name           string          `json:"name"`
	BrandID        *int64          `json:"brand_id"`
	Type           *string         `json:"type"`
	ModelYear      *int            `json:"model_year"`
	Description    *string         `json:"description"`
	Price          *float64        `json:"price"`
	Specifications json.RawMessage `json:"specifications"`
}

// BicycleDetail is a bicycle with its components. Components is never nil,
// so it encodes as [] for a bicycle without parts.
type BicycleDetail struct {
	Bicycle
	Components []Component `json:"components"`
}

// Component is a bicycle part with its category detail row (null when the
// detail row is missing).
type Component struct {
	ID       int64           `json:"component_id"`
	BikeID   int64           `json:"bike_id"`
	Category Category        `json:"category"`
	Details  json.RawMessage `json:"details"`
}

// Manufacturer is a company that produces bicycles for one or more brands.
type Manufacturer struct {
	ID      int64   `json:"manufacturer_id"`
	Name    string  `json:"name"`
	Country *string `json:"country"`
	Website *string `json:"website"`
	Active  bool    `json:"active"`
}

// Brand is a bicycle brand with its current manufacturer.
type Brand struct {
	ID                  int64   `json:"brand_id"`
	Name                string  `json:"name"`
	ManufacturerID      *int64  `json:"manufacturer_id"`
	Website             *string `json:"website"`
	Active              bool    `json:"active"`
	ManufacturerName    *string `json:"manufacturer_name"`
	ManufacturerCountry *string `json:"manufacturer_country"`
}

// BrandHistoryEntry records a change of manufacturer for a brand.
type BrandHistoryEntry struct {
	ID                  int64     `json:"history_id"`
	BrandID             int64     `json:"brand_id"`
	OldManufacturerID   *int64    `json:"old_manufacturer_id"`
	NewManufacturerID   *int64    `json:"new_manufacturer_id"`
	ChangeDate          time.Time `json:"change_date"`
	Notes               *string   `json:"notes"`
	OldManufacturerName *string   `json:"old_manufacturer_name"`
	NewManufacturerName *string   `json:"new_manufacturer_name"`
}

// BicycleInput is the admin create/update payload. On update, nil fields
// keep their stored value.
type BicycleInput struct {
	Name           *string         `json:"name"`
	BrandID        *int64          `json:"brand_id"`
	Type           *string         `json:"type"`
	ModelYear      *int            `json:"model_year"`
	Description    *string         `json:"description"`
	Price          *float64        `json:"price"`
	Specifications json.RawMessage `json:"specifications"`
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service runs the catalog queries. It has no dependency on net/http.
type Service struct {
	db db.DBTX
}

// NewService returns a Service backed by conn (normally a *pgxpool.Pool).
func NewService(conn db.DBTX) *Service {
	return &Service{db: conn}
}

const bicycleColumns = `bike_id, name, brand_id, type, model_year, description,
	       price::float8, specifications`

func scanBicycle(row pgx.Row) (*Bicycle, error) {
	var b Bicycle
	if err := row.Scan(
		&b.ID, &b.Name, &b.BrandID, &b.Type, &b.ModelYear, &b.Description,
		&b.Price, &b.Specifications,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBicycles returns every bicycle, optionally filtered by exact type.
func (s *Service) ListBicycles(ctx context.Context, bikeType string) ([]Bicycle, error) {
	var (
		rows pgx.Rows
		err  error
	)
	base := `SELECT ` + bicycleColumns + ` FROM bicycles`
	if bikeType != "" {
		rows, err = s.db.Query(ctx, base+` WHERE type = $1 ORDER BY bike_id`, bikeType)
	} else {
		rows, err = s.db.Query(ctx, base+` ORDER BY bike_id`)
	}
	if err != nil {
		return nil, fmt.Errorf("listBicycles query: %w", err)
	}
	defer rows.Close()

	bikes := make([]Bicycle, 0)
	for rows.Next() {
		b, err := scanBicycle(rows)
		if err != nil {
			return nil, fmt.Errorf("listBicycles scan: %w", err)
		}
		bikes = append(bikes, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listBicycles rows: %w", err)
	}
	return bikes, nil
}

// GetBicycle returns one bicycle with all its components and their details.
func (s *Service) GetBicycle(ctx context.Context, id int64) (*BicycleDetail, error) {
	b, err := scanBicycle(s.db.QueryRow(ctx,
		`SELECT `+bicycleColumns+` FROM bicycles WHERE bike_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getBicycle: %w", err)
	}

	comps, err := s.queryComponents(ctx, `c.bike_id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &BicycleDetail{Bicycle: *b, Components: comps}, nil
}

// ListComponentsByCategory returns every component of the given category with
// its details. The category is validated before the store is touched.
func (s *Service) ListComponentsByCategory(ctx context.Context, category string) ([]Component, error) {
	c, err := ParseCategory(category)
	if err != nil {
		return nil, &ValidationError{Msg: "Invalid component category"}
	}
	return s.queryComponents(ctx, `c.category = $1`, string(c))
}

func (s *Service) queryComponents(ctx context.Context, where string, arg any) ([]Component, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.component_id, c.bike_id, c.category, d.details
		 FROM components c
		 LEFT JOIN `+DetailUnionSQL()+` d
		   ON d.component_id = c.component_id AND d.category = c.category
		 WHERE `+where+`
		 ORDER BY c.component_id`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("components query: %w", err)
	}
	defer rows.Close()

	out := make([]Component, 0)
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ID, &c.BikeID, &c.Category, &c.Details); err != nil {
			return nil, fmt.Errorf("components scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("components rows: %w", err)
	}
	return out, nil
}

// ListManufacturers returns active manufacturers ordered by name.
func (s *Service) ListManufacturers(ctx context.Context) ([]Manufacturer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT manufacturer_id, name, country, website, active
		 FROM manufacturers
		 WHERE active = true
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listManufacturers query: %w", err)
	}
	defer rows.Close()

	out := make([]Manufacturer, 0)
	for rows.Next() {
		var m Manufacturer
		if err := rows.Scan(&m.ID, &m.Name, &m.Country, &m.Website, &m.Active); err != nil {
			return nil, fmt.Errorf("listManufacturers scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListBrands returns active brands with their current manufacturer.
func (s *Service) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := s.db.Query(ctx,
		`SELECT b.brand_id, b.name, b.manufacturer_id, b.website, b.active,
		        m.name, m.country
		 FROM brands b
		 LEFT JOIN manufacturers m ON b.manufacturer_id = m.manufacturer_id
		 WHERE b.active = true
		 ORDER BY b.name`)
	if err != nil {
		return nil, fmt.Errorf("listBrands query: %w", err)
	}
	defer rows.Close()

	out := make([]Brand, 0)
	for rows.Next() {
		var b Brand
		if err := rows.Scan(
			&b.ID, &b.Name, &b.ManufacturerID, &b.Website, &b.Active,
			&b.ManufacturerName, &b.ManufacturerCountry,
		); err != nil {
			return nil, fmt.Errorf("listBrands scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BrandHistory returns the manufacturer changes of a brand, newest first.
func (s *Service) BrandHistory(ctx context.Context, brandID int64) ([]BrandHistoryEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT bh.history_id, bh.brand_id, bh.old_manufacturer_id, bh.new_manufacturer_id,
		        bh.change_date, bh.notes,
		        old_m.name, new_m.name
		 FROM brand_history bh
		 LEFT JOIN manufacturers old_m ON bh.old_manufacturer_id = old_m.manufacturer_id
		 LEFT JOIN manufacturers new_m ON bh.new_manufacturer_id = new_m.manufacturer_id
		 WHERE bh.brand_id = $1
		 ORDER BY bh.change_date DESC`,
		brandID,
	)
	if err != nil {
		return nil, fmt.Errorf("brandHistory query: %w", err)
	}
	defer rows.Close()

	out := make([]BrandHistoryEntry, 0)
	for rows.Next() {
		var h BrandHistoryEntry
		if err := rows.Scan(
			&h.ID, &h.BrandID, &h.OldManufacturerID, &h.NewManufacturerID,
			&h.ChangeDate, &h.Notes, &h.OldManufacturerName, &h.NewManufacturerName,
		); err != nil {
			return nil, fmt.Errorf("brandHistory scan: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ─── Admin ───────────────────────────────────────────────────────────────────

// CreateBicycle inserts a new bicycle. Name is required.
func (s *Service) CreateBicycle(ctx context.Context, in BicycleInput) (*Bicycle, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, &ValidationError{Msg: "name is required"}
	}

	b, err := scanBicycle(s.db.QueryRow(ctx,
		`INSERT INTO bicycles (name, brand_id, type, model_year, description, price, specifications)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		 RETURNING `+bicycleColumns,
		strings.TrimSpace(*in.Name), in.BrandID, in.Type, in.ModelYear, in.Description,
		in.Price, nullableJSON(in.Specifications),
	))
	if err != nil {
		return nil, fmt.Errorf("createBicycle: %w", err)
	}
	return b, nil
}

// UpdateBicycle applies coalesce-with-existing semantics: fields left nil in
// in keep their stored value.
func (s *Service) UpdateBicycle(ctx context.Context, id int64, in BicycleInput) (*Bicycle, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, &ValidationError{Msg: "name cannot be empty"}
	}

	b, err := scanBicycle(s.db.QueryRow(ctx,
		`UPDATE bicycles
		 SET name           = COALESCE($1, name),
		     brand_id       = COALESCE($2, brand_id),
		     type           = COALESCE($3, type),
		     model_year     = COALESCE($4, model_year),
		     description    = COALESCE($5, description),
		     price          = COALESCE($6, price),
		     specifications = COALESCE($7::jsonb, specifications)
		 WHERE bike_id = $8
		 RETURNING `+bicycleColumns,
		in.Name, in.BrandID, in.Type, in.ModelYear, in.Description, in.Price,
		nullableJSON(in.Specifications), id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updateBicycle: %w", err)
	}
	return b, nil
}

// DeleteBicycle removes a bicycle with its components and their detail rows
// in one transaction. Review records that matched it are unlinked.
func (s *Service) DeleteBicycle(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, c := range Categories() {
			if _, err := tx.Exec(ctx,
				`DELETE FROM `+c.DetailTable()+`
				 WHERE component_id IN (SELECT component_id FROM components WHERE bike_id = $1)`,
				id,
			); err != nil {
				return fmt.Errorf("deleteBicycle %s details: %w", c, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM components WHERE bike_id = $1`, id); err != nil {
			return fmt.Errorf("deleteBicycle components: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE scraped_bikes_review SET matching_bike_id = NULL WHERE matching_bike_id = $1`, id,
		); err != nil {
			return fmt.Errorf("deleteBicycle unlink reviews: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM bicycles WHERE bike_id = $1`, id)
		if err != nil {
			return fmt.Errorf("deleteBicycle: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

// ─── Errors ──────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a bicycle does not exist.
var ErrNotFound = errors.New("bicycle not found")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

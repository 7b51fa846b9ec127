package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bikecatalog/catalog-service/internal/catalog"
	"bikecatalog/catalog-service/internal/db"
)

// PostgresStore implements Store on top of pgx.
type PostgresStore struct {
	db db.DBTX
}

// NewPostgresStore returns a Store backed by conn (normally a *pgxpool.Pool).
func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{db: conn}
}

var listScrapedSQL = `
	SELECT r.review_id, r.brand_id, br.name, r.raw_data, r.scraped_at,
	       r.review_status, r.reviewer_id, r.review_notes, r.matching_bike_id,
	       r.reviewed_at,
	       b.name, b.type, b.model_year, comp.components
	FROM scraped_bikes_review r
	LEFT JOIN brands br ON br.brand_id = r.brand_id
	LEFT JOIN bicycles b ON b.bike_id = r.matching_bike_id
	LEFT JOIN LATERAL (
	  SELECT jsonb_object_agg(c.category, jsonb_build_object(
	           'name',     d.details->'name',
	           'weight',   d.details->'weight',
	           'material', d.details->'material')) AS components
	  FROM components c
	  LEFT JOIN ` + catalog.DetailUnionSQL() + ` d
	    ON d.component_id = c.component_id AND d.category = c.category
	  WHERE c.bike_id = r.matching_bike_id
	) comp ON true
	ORDER BY CASE r.review_status WHEN 'pending' THEN 0 WHEN 'approved' THEN 1 ELSE 2 END,
	         r.scraped_at DESC`

// ListScraped returns every review record joined with its matched bicycle.
func (p *PostgresStore) ListScraped(ctx context.Context) ([]ScrapedBike, error) {
	rows, err := p.db.Query(ctx, listScrapedSQL)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := make([]ScrapedBike, 0)
	for rows.Next() {
		var (
			r          ScrapedBike
			status     string
			bikeName   *string
			bikeType   *string
			modelYear  *int
			components []byte
		)
		if err := rows.Scan(
			&r.ReviewID, &r.BrandID, &r.BrandName, &r.RawData, &r.ScrapedAt,
			&status, &r.ReviewerID, &r.ReviewNotes, &r.MatchingBikeID,
			&r.ReviewedAt,
			&bikeName, &bikeType, &modelYear, &components,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Status = Status(status)

		if bikeName != nil {
			m := &MatchedBike{
				Name:       *bikeName,
				Type:       bikeType,
				ModelYear:  modelYear,
				Components: map[catalog.Category]ComponentSummary{},
			}
			if len(components) > 0 {
				if err := json.Unmarshal(components, &m.Components); err != nil {
					return nil, fmt.Errorf("decode components of bike %d: %w", *r.MatchingBikeID, err)
				}
			}
			r.MatchedBike = m
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// SetDecision updates the record in a single statement and returns the
// status it had before.
func (p *PostgresStore) SetDecision(ctx context.Context, d Decision) (Status, error) {
	var prev string
	err := p.db.QueryRow(ctx,
		`WITH prev AS (
		   SELECT review_id, review_status
		   FROM scraped_bikes_review
		   WHERE review_id = $6
		   FOR UPDATE
		 )
		 UPDATE scraped_bikes_review r
		 SET review_status    = $1,
		     reviewer_id      = $2,
		     review_notes     = $3,
		     matching_bike_id = $4,
		     reviewed_at      = $5
		 FROM prev
		 WHERE r.review_id = prev.review_id
		 RETURNING prev.review_status`,
		string(d.Status), d.ReviewerID, d.Notes, d.MatchingBikeID, d.ReviewedAt, d.ReviewID,
	).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if isForeignKeyViolation(err) && d.MatchingBikeID != nil {
		return "", fmt.Errorf("%w: matching bicycle %d", ErrNotFound, *d.MatchingBikeID)
	}
	if err != nil {
		return "", fmt.Errorf("setDecision: %w", err)
	}
	return Status(prev), nil
}

// isForeignKeyViolation reports a 23503 error, raised here when
// matching_bike_id names a bicycle that does not exist.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// GetStatus returns the current status of a record.
func (p *PostgresStore) GetStatus(ctx context.Context, reviewID int64) (Status, error) {
	var st string
	err := p.db.QueryRow(ctx,
		`SELECT review_status FROM scraped_bikes_review WHERE review_id = $1`, reviewID,
	).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getStatus: %w", err)
	}
	return Status(st), nil
}

// DeleteRejected deletes the record only while it is rejected.
func (p *PostgresStore) DeleteRejected(ctx context.Context, reviewID int64) (bool, error) {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM scraped_bikes_review WHERE review_id = $1 AND review_status = $2`,
		reviewID, string(StatusRejected),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountByStatus counts records per status.
func (p *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := p.db.Query(ctx,
		`SELECT review_status, COUNT(*) FROM scraped_bikes_review GROUP BY review_status`)
	if err != nil {
		return nil, fmt.Errorf("countByStatus: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("countByStatus scan: %w", err)
		}
		out[Status(st)] = n
	}
	return out, rows.Err()
}

// WithTx acquires a connection, begins a transaction and hands it to fn.
// pgx.BeginFunc commits on nil, rolls back on error or panic, and the
// connection goes back to the pool either way.
func (p *PostgresStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		return fn(pgTx{tx: tx})
	})
}

// ─── Transaction statements ──────────────────────────────────────────────────

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) BicycleExists(ctx context.Context, bikeID int64) (bool, error) {
	var exists bool
	// FOR UPDATE serializes concurrent applies on the same bicycle row.
	err := t.tx.QueryRow(ctx,
		`SELECT true FROM bicycles WHERE bike_id = $1 FOR UPDATE`, bikeID,
	).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return exists, err
}

func (t pgTx) UpdateBasic(ctx context.Context, bikeID int64, b BasicChanges) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE bicycles
		 SET name       = COALESCE($1, name),
		     type       = COALESCE($2, type),
		     model_year = COALESCE($3, model_year)
		 WHERE bike_id = $4`,
		b.Name.Ptr(), b.Type.Ptr(), b.ModelYear.Ptr(), bikeID,
	)
	return err
}

func (t pgTx) FindComponent(ctx context.Context, bikeID int64, category catalog.Category) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`SELECT component_id FROM components
		 WHERE bike_id = $1 AND category = $2
		 ORDER BY component_id
		 LIMIT 1
		 FOR UPDATE`,
		bikeID, string(category),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t pgTx) UpdateComponent(ctx context.Context, componentID int64, category catalog.Category, c NormalizedComponent) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE `+category.DetailTable()+`
		 SET name     = COALESCE($1, name),
		     weight   = COALESCE($2, weight),
		     material = COALESCE($3, material)
		 WHERE component_id = $4`,
		c.Name, c.Weight, c.Material, componentID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// component row without a detail row
		return t.insertDetails(ctx, componentID, category, c)
	}
	return nil
}

func (t pgTx) InsertComponent(ctx context.Context, bikeID int64, category catalog.Category, c NormalizedComponent) (int64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx,
		`INSERT INTO components (bike_id, category) VALUES ($1, $2) RETURNING component_id`,
		bikeID, string(category),
	).Scan(&id); err != nil {
		return 0, err
	}
	if err := t.insertDetails(ctx, id, category, c); err != nil {
		return 0, err
	}
	return id, nil
}

func (t pgTx) insertDetails(ctx context.Context, componentID int64, category catalog.Category, c NormalizedComponent) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO `+category.DetailTable()+` (component_id, name, weight, material)
		 VALUES ($1, $2, $3, $4)`,
		componentID, c.Name, c.Weight, c.Material,
	)
	return err
}

package review_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikecatalog/catalog-service/internal/catalog"
	"bikecatalog/catalog-service/internal/db/dbtest"
	"bikecatalog/catalog-service/internal/review"
)

// ── Listing ────────────────────────────────────────────────────────────────

func TestPostgresStore_ListScrapedQuery(t *testing.T) {
	conn := &dbtest.DB{}
	_, _ = review.NewPostgresStore(conn).ListScraped(context.Background())

	calls := conn.Calls()
	require.Len(t, calls, 1)
	sql := calls[0].SQL
	assert.Contains(t, sql, "LEFT JOIN LATERAL")
	assert.Contains(t, sql, "jsonb_object_agg(c.category")
	assert.Contains(t, sql, "ORDER BY CASE r.review_status WHEN 'pending' THEN 0 WHEN 'approved' THEN 1 ELSE 2 END")
	assert.Contains(t, sql, "r.scraped_at DESC")
	for _, c := range catalog.Categories() {
		assert.Contains(t, sql, "FROM "+c.DetailTable()+" t", "detail table of %s", c)
	}
}

func TestPostgresStore_ListScrapedDecodesMatchedBike(t *testing.T) {
	scraped := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	conn := &dbtest.DB{
		OnQuery: func(string, []any) (pgx.Rows, error) {
			return &dbtest.Rows{Data: [][]any{
				{
					int64(1), nil, nil, []byte(`{"model":"Epic"}`), scraped,
					"pending", nil, nil, int64(7), nil,
					"Epic", "mountain", 2024,
					[]byte(`{"wheels":{"name":"A","weight":1.5,"material":null}}`),
				},
				{
					int64(2), nil, nil, nil, scraped,
					"rejected", nil, nil, nil, nil,
					nil, nil, nil, nil,
				},
			}}, nil
		},
	}

	recs, err := review.NewPostgresStore(conn).ListScraped(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, review.StatusPending, first.Status)
	assert.JSONEq(t, `{"model":"Epic"}`, string(first.RawData))
	require.NotNil(t, first.MatchedBike)
	assert.Equal(t, "Epic", first.MatchedBike.Name)
	assert.Equal(t, 2024, *first.MatchedBike.ModelYear)
	wheels := first.MatchedBike.Components[catalog.CategoryWheels]
	assert.Equal(t, "A", *wheels.Name)
	assert.InDelta(t, 1.5, *wheels.Weight, 1e-9)
	assert.Nil(t, wheels.Material)

	assert.Nil(t, recs[1].MatchedBike)
}

// ── Decisions ──────────────────────────────────────────────────────────────

func TestPostgresStore_SetDecisionReturnsPrevious(t *testing.T) {
	conn := &dbtest.DB{
		OnQueryRow: func(string, []any) pgx.Row { return dbtest.Row{Values: []any{"pending"}} },
	}

	prev, err := review.NewPostgresStore(conn).SetDecision(context.Background(), review.Decision{
		ReviewID: 9,
		Status:   review.StatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, prev)

	calls := conn.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SQL, "FOR UPDATE")
	assert.Contains(t, calls[0].SQL, "RETURNING prev.review_status")
	assert.Equal(t, "approved", calls[0].Args[0])
	assert.Equal(t, int64(9), calls[0].Args[5])
}

func TestPostgresStore_SetDecisionMissingReview(t *testing.T) {
	conn := &dbtest.DB{}
	_, err := review.NewPostgresStore(conn).SetDecision(context.Background(), review.Decision{ReviewID: 9})
	assert.ErrorIs(t, err, review.ErrNotFound)
}

func TestPostgresStore_SetDecisionUnknownBicycle(t *testing.T) {
	conn := &dbtest.DB{
		OnQueryRow: func(string, []any) pgx.Row {
			return dbtest.Row{Err: &pgconn.PgError{Code: "23503", ConstraintName: "scraped_bikes_review_matching_bike_id_fkey"}}
		},
	}
	bike := int64(404)

	_, err := review.NewPostgresStore(conn).SetDecision(context.Background(), review.Decision{
		ReviewID:       9,
		Status:         review.StatusApproved,
		MatchingBikeID: &bike,
	})
	assert.ErrorIs(t, err, review.ErrNotFound)
	assert.ErrorContains(t, err, "matching bicycle 404")
}

func TestPostgresStore_SetDecisionStorageError(t *testing.T) {
	conn := &dbtest.DB{
		OnQueryRow: func(string, []any) pgx.Row { return dbtest.Row{Err: errors.New("conn reset")} },
	}
	_, err := review.NewPostgresStore(conn).SetDecision(context.Background(), review.Decision{ReviewID: 9})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, review.ErrNotFound)
}

func TestPostgresStore_GetStatusMissing(t *testing.T) {
	_, err := review.NewPostgresStore(&dbtest.DB{}).GetStatus(context.Background(), 3)
	assert.ErrorIs(t, err, review.ErrNotFound)
}

func TestPostgresStore_DeleteRejected(t *testing.T) {
	tag := "DELETE 0"
	conn := &dbtest.DB{
		OnExec: func(string, []any) (pgconn.CommandTag, error) { return dbtest.Tag(tag), nil },
	}
	store := review.NewPostgresStore(conn)

	deleted, err := store.DeleteRejected(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, deleted)

	tag = "DELETE 1"
	deleted, err = store.DeleteRejected(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, deleted)

	calls := conn.Calls()
	assert.Contains(t, calls[0].SQL, "review_status = $2")
	assert.Equal(t, "rejected", calls[0].Args[1])
}

func TestPostgresStore_CountByStatus(t *testing.T) {
	conn := &dbtest.DB{
		OnQuery: func(string, []any) (pgx.Rows, error) {
			return &dbtest.Rows{Data: [][]any{{"pending", 2}, {"rejected", 1}}}, nil
		},
	}
	counts, err := review.NewPostgresStore(conn).CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[review.Status]int{review.StatusPending: 2, review.StatusRejected: 1}, counts)
}

// ── Apply path ─────────────────────────────────────────────────────────────

// applyConn answers the apply statements: bicycle 7 exists and owns wheels
// component 55; other categories have no component yet.
func applyConn() *dbtest.DB {
	return &dbtest.DB{
		OnQueryRow: func(sql string, args []any) pgx.Row {
			switch {
			case strings.Contains(sql, "FROM bicycles"):
				if args[0] == int64(7) {
					return dbtest.Row{Values: []any{true}}
				}
			case strings.Contains(sql, "FROM components"):
				if args[1] == string(catalog.CategoryWheels) {
					return dbtest.Row{Values: []any{int64(55)}}
				}
			case strings.Contains(sql, "INSERT INTO components"):
				return dbtest.Row{Values: []any{int64(900)}}
			}
			return dbtest.Row{Err: pgx.ErrNoRows}
		},
		OnExec: func(sql string, _ []any) (pgconn.CommandTag, error) {
			if strings.HasPrefix(strings.TrimSpace(sql), "INSERT") {
				return dbtest.Tag("INSERT 0 1"), nil
			}
			return dbtest.Tag("UPDATE 1"), nil
		},
	}
}

func execsMatching(conn *dbtest.DB, prefix string) []dbtest.Call {
	var out []dbtest.Call
	for _, c := range conn.Calls() {
		if strings.HasPrefix(strings.TrimSpace(c.SQL), prefix) {
			out = append(out, c)
		}
	}
	return out
}

func TestPostgresStore_ApplyUpdatesDetailRowWithCoalesce(t *testing.T) {
	conn := applyConn()
	svc := review.NewService(review.NewPostgresStore(conn), nil)

	var ch review.Changes
	require.NoError(t, json.Unmarshal([]byte(
		`{"components": {"c1": {"category": "wheels", "name": null, "weight": "1.5 kg", "material": null}}}`), &ch))
	_, err := svc.ApplyChanges(context.Background(), 7, ch)
	require.NoError(t, err)

	updates := execsMatching(conn, `UPDATE "wheels"`)
	require.Len(t, updates, 1)
	u := updates[0]
	assert.Contains(t, u.SQL, "name     = COALESCE($1, name)")
	assert.Contains(t, u.SQL, "weight   = COALESCE($2, weight)")
	assert.Nil(t, u.Args[0])
	require.IsType(t, (*float64)(nil), u.Args[1])
	assert.InDelta(t, 1.5, *u.Args[1].(*float64), 1e-9)
	assert.Nil(t, u.Args[2])
	assert.Equal(t, int64(55), u.Args[3])

	assert.Empty(t, execsMatching(conn, "INSERT"))
	require.NotNil(t, conn.Tx)
	assert.True(t, conn.Tx.Committed)
}

func TestPostgresStore_ApplyInsertsMissingDetailRow(t *testing.T) {
	conn := applyConn()
	conn.OnExec = func(sql string, _ []any) (pgconn.CommandTag, error) {
		if strings.HasPrefix(strings.TrimSpace(sql), "INSERT") {
			return dbtest.Tag("INSERT 0 1"), nil
		}
		// component 55 has no detail row
		return dbtest.Tag("UPDATE 0"), nil
	}
	svc := review.NewService(review.NewPostgresStore(conn), nil)

	_, err := svc.ApplyChanges(context.Background(), 7, review.Changes{
		Components: map[string]review.ComponentChange{
			"c1": {Category: "wheels", Name: review.Some("DT Swiss")},
		},
	})
	require.NoError(t, err)

	inserts := execsMatching(conn, `INSERT INTO "wheels"`)
	require.Len(t, inserts, 1)
	assert.Equal(t, int64(55), inserts[0].Args[0])
	assert.Equal(t, "DT Swiss", *inserts[0].Args[1].(*string))
	assert.True(t, conn.Tx.Committed)
}

func TestPostgresStore_ApplyInsertsNewComponent(t *testing.T) {
	conn := applyConn()
	svc := review.NewService(review.NewPostgresStore(conn), nil)

	_, err := svc.ApplyChanges(context.Background(), 7, review.Changes{
		Components: map[string]review.ComponentChange{
			"s": {Category: "saddle", Name: review.Some("Power Pro")},
		},
	})
	require.NoError(t, err)

	var insertedComponent bool
	for _, c := range conn.Calls() {
		if strings.Contains(c.SQL, "INSERT INTO components") {
			insertedComponent = true
			assert.Equal(t, int64(7), c.Args[0])
			assert.Equal(t, "saddle", c.Args[1])
		}
	}
	assert.True(t, insertedComponent)

	details := execsMatching(conn, `INSERT INTO "saddle"`)
	require.Len(t, details, 1)
	assert.Equal(t, int64(900), details[0].Args[0])
}

func TestPostgresStore_ApplyRollsBackOnStorageError(t *testing.T) {
	conn := applyConn()
	conn.OnExec = func(string, []any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("disk full")
	}
	svc := review.NewService(review.NewPostgresStore(conn), nil)

	_, err := svc.ApplyChanges(context.Background(), 7, review.Changes{
		Basic: &review.BasicChanges{Name: review.Some("Epic EVO")},
	})
	require.Error(t, err)
	assert.True(t, conn.Tx.RolledBack)
	assert.False(t, conn.Tx.Committed)
}

func TestPostgresStore_ApplyMissingBicycle(t *testing.T) {
	conn := applyConn()
	svc := review.NewService(review.NewPostgresStore(conn), nil)

	_, err := svc.ApplyChanges(context.Background(), 8, review.Changes{
		Basic: &review.BasicChanges{Name: review.Some("X")},
	})
	assert.ErrorIs(t, err, review.ErrNotFound)
	assert.True(t, conn.Tx.RolledBack)
	assert.Empty(t, execsMatching(conn, "UPDATE"))
}

func TestPostgresStore_ApplyBasicUsesCoalesce(t *testing.T) {
	conn := applyConn()
	svc := review.NewService(review.NewPostgresStore(conn), nil)

	_, err := svc.ApplyChanges(context.Background(), 7, review.Changes{
		Basic: &review.BasicChanges{Name: review.Null[string](), ModelYear: review.Some(2025)},
	})
	require.NoError(t, err)

	updates := execsMatching(conn, "UPDATE bicycles")
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].SQL, "model_year = COALESCE($3, model_year)")
	assert.Nil(t, updates[0].Args[0])
	assert.Equal(t, 2025, *updates[0].Args[2].(*int))
	assert.Equal(t, int64(7), updates[0].Args[3])
}

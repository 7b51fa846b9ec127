// Package dbtest provides a scripted db.DBTX for exercising SQL-issuing code
// without a database. Every statement is recorded; results come from the
// On* callbacks.
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call is one recorded statement.
type Call struct {
	SQL  string
	Args []any
}

// DB records statements and answers them through the On* callbacks. A nil
// callback answers Exec with an empty tag, Query with no rows and QueryRow
// with pgx.ErrNoRows.
type DB struct {
	mu    sync.Mutex
	calls []Call

	OnExec     func(sql string, args []any) (pgconn.CommandTag, error)
	OnQuery    func(sql string, args []any) (pgx.Rows, error)
	OnQueryRow func(sql string, args []any) pgx.Row
	BeginErr   error

	// Tx is the last transaction started with Begin.
	Tx *Tx
}

// Calls returns the recorded statements in order.
func (d *DB) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

func (d *DB) record(sql string, args []any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{SQL: sql, Args: args})
}

func (d *DB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.record(sql, args)
	if d.OnExec == nil {
		return pgconn.CommandTag{}, nil
	}
	return d.OnExec(sql, args)
}

func (d *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.record(sql, args)
	if d.OnQuery == nil {
		return &Rows{}, nil
	}
	return d.OnQuery(sql, args)
}

func (d *DB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.record(sql, args)
	if d.OnQueryRow == nil {
		return Row{Err: pgx.ErrNoRows}
	}
	return d.OnQueryRow(sql, args)
}

func (d *DB) Begin(_ context.Context) (pgx.Tx, error) {
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	tx := &Tx{db: d}
	d.mu.Lock()
	d.Tx = tx
	d.mu.Unlock()
	return tx, nil
}

// Tx is a transaction on DB. Statements go through the parent's callbacks.
// Methods other than the ones below panic (nil embedded interface).
type Tx struct {
	pgx.Tx
	db *DB

	Committed  bool
	RolledBack bool
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *Tx) Commit(context.Context) error {
	if t.Committed || t.RolledBack {
		return pgx.ErrTxClosed
	}
	t.Committed = true
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.Committed || t.RolledBack {
		return pgx.ErrTxClosed
	}
	t.RolledBack = true
	return nil
}

// Row is a single scripted result row. Nil values leave the destination
// untouched.
type Row struct {
	Values []any
	Err    error
}

func (r Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	return assign(r.Values, dest)
}

// Rows is a scripted result set.
type Rows struct {
	Data   [][]any
	ErrVal error
	pos    int
	closed bool
}

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return r.ErrVal }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	if r.closed || r.pos >= len(r.Data) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	return assign(r.Data[r.pos-1], dest)
}

func (r *Rows) Values() ([]any, error) {
	return r.Data[r.pos-1], nil
}

// assign copies values into dest pointers, converting where the types are
// convertible and allocating when dest is a pointer-to-pointer.
func assign(values, dest []any) error {
	for i, d := range dest {
		if i >= len(values) || values[i] == nil {
			continue
		}
		v := reflect.ValueOf(values[i])
		el := reflect.ValueOf(d).Elem()
		switch {
		case v.Type().AssignableTo(el.Type()):
			el.Set(v)
		case el.Kind() == reflect.Pointer && v.Type().ConvertibleTo(el.Type().Elem()):
			p := reflect.New(el.Type().Elem())
			p.Elem().Set(v.Convert(el.Type().Elem()))
			el.Set(p)
		case v.Type().ConvertibleTo(el.Type()):
			el.Set(v.Convert(el.Type()))
		default:
			return fmt.Errorf("dbtest: cannot scan %T into %s", values[i], el.Type())
		}
	}
	return nil
}

// Tag returns a command tag such as "UPDATE 1".
func Tag(s string) pgconn.CommandTag { return pgconn.NewCommandTag(s) }

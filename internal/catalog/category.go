// Package catalog serves the canonical bicycle catalog: bicycles, their
// components, brands and manufacturers.
//
// Component categories form a closed set. Each category owns a detail table
// named after it, keyed by component_id:
//
//	components (component_id, bike_id, category)
//	    └── frame | wheels | drivetrain | … (component_id, name, weight, material, …)
//
// Detail tables are only ever addressed through detailTables, never by
// formatting caller input into SQL.
package catalog

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Category values mirror the category column of the components table.
type Category string

const (
	CategoryFrame             Category = "frame"
	CategoryWheels            Category = "wheels"
	CategoryDrivetrain        Category = "drivetrain"
	CategoryBrakes            Category = "brakes"
	CategoryFork              Category = "fork"
	CategoryRearShock         Category = "rear_shock"
	CategoryCockpitComponents Category = "cockpit_components"
	CategorySaddle            Category = "saddle"
	CategorySeatpost          Category = "seatpost"
	CategoryPedals            Category = "pedals"
	CategoryEBikeFeatures     Category = "e_bike_features"
)

// categories is the fixed enumeration in display order.
var categories = []Category{
	CategoryFrame,
	CategoryWheels,
	CategoryDrivetrain,
	CategoryBrakes,
	CategoryFork,
	CategoryRearShock,
	CategoryCockpitComponents,
	CategorySaddle,
	CategorySeatpost,
	CategoryPedals,
	CategoryEBikeFeatures,
}

// detailTables maps each category to its pre-quoted detail table name.
var detailTables = func() map[Category]string {
	m := make(map[Category]string, len(categories))
	for _, c := range categories {
		m[c] = pgx.Identifier{string(c)}.Sanitize()
	}
	return m
}()

// Categories returns a copy of the category enumeration.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory converts a raw string to a Category. Matching is exact.
func ParseCategory(s string) (Category, error) {
	if c := Category(s); c.Valid() {
		return c, nil
	}
	return "", fmt.Errorf("unknown component category %q", s)
}

// Valid reports whether c belongs to the enumeration.
func (c Category) Valid() bool {
	_, ok := detailTables[c]
	return ok
}

// DetailTable returns the quoted detail table for c. It panics on a category
// outside the enumeration; callers validate first.
func (c Category) DetailTable() string {
	t, ok := detailTables[c]
	if !ok {
		panic(fmt.Sprintf("catalog: no detail table for category %q", c))
	}
	return t
}

// detailUnion is a derived table (component_id, category, details) covering
// every detail table, with each row rendered as jsonb.
var detailUnion = func() string {
	parts := make([]string, 0, len(categories))
	for _, c := range categories {
		parts = append(parts, fmt.Sprintf(
			`SELECT component_id, '%s'::text AS category, to_jsonb(t) AS details FROM %s t`,
			string(c), c.DetailTable(),
		))
	}
	return "(" + strings.Join(parts, "\n UNION ALL\n ") + ")"
}()

// DetailUnionSQL returns the derived-table SQL joining every category detail
// table. Join it on both component_id and category.
func DetailUnionSQL() string { return detailUnion }

package review

import (
	"bytes"
	"encoding/json"
)

// Optional distinguishes an omitted JSON field from an explicit null and
// from a supplied value. Only a supplied non-null value overwrites stored
// data; omitted and null both leave the stored value unchanged.
type Optional[T any] struct {
	Set   bool // key present in the payload
	Null  bool // key present with a null value
	Value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: v} }

// Null returns an Optional holding an explicit null.
func Null[T any]() Optional[T] { return Optional[T]{Set: true, Null: true} }

// Present reports whether a non-null value was supplied.
func (o Optional[T]) Present() bool { return o.Set && !o.Null }

// Ptr returns a pointer to the value, or nil when no value was supplied.
func (o Optional[T]) Ptr() *T {
	if !o.Present() {
		return nil
	}
	v := o.Value
	return &v
}

// UnmarshalJSON is only invoked when the key is present.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON renders absent and null values as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Present() {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Changes is the approved delta for one canonical bicycle.
type Changes struct {
	Basic      *BasicChanges              `json:"basic,omitempty"`
	Components map[string]ComponentChange `json:"components,omitempty"`
}

// BasicChanges updates the bicycle row itself.
type BasicChanges struct {
	Name      Optional[string] `json:"name"`
	Type      Optional[string] `json:"type"`
	ModelYear Optional[int]    `json:"model_year"`
}

// Empty reports whether no basic field carries a value.
func (b *BasicChanges) Empty() bool {
	return b == nil || (!b.Name.Present() && !b.Type.Present() && !b.ModelYear.Present())
}

// ComponentChange is one scraped component delta. Name may hold a serialized
// object (see Normalize); Weight may be a number or a string such as "2.1 kg".
type ComponentChange struct {
	Category string           `json:"category"`
	Name     Optional[string] `json:"name"`
	Weight   json.RawMessage  `json:"weight,omitempty"`
	Material Optional[string] `json:"material"`
}

package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"bikecatalog/catalog-service/internal/logging"
)

// NormalizedComponent is the canonical shape written to the store. Nil
// pointers mean "not supplied" and preserve the stored value on update.
type NormalizedComponent struct {
	Category string
	Name     *string
	Weight   *float64
	Material *string
}

// ParsedName is the resolved form of a scraped name field: either a
// PlainName or a StructuredName.
type ParsedName interface{ parsedName() }

// PlainName is a name that was an ordinary string.
type PlainName string

// StructuredName is a name that carried a serialized object such as
// {'name': 'X', 'weight': '2.1 kg'}.
type StructuredName struct {
	Name     *string
	Weight   *float64
	Material *string
}

func (PlainName) parsedName()      {}
func (StructuredName) parsedName() {}

// ParseName resolves raw into a PlainName or, when it starts with '{', a
// StructuredName decoded from single-quoted pseudo-JSON. A string that looks
// like an object but does not decode is returned as a PlainName together
// with the decode error.
func ParseName(raw string) (ParsedName, error) {
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return PlainName(raw), nil
	}

	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(strings.ReplaceAll(raw, "'", `"`)))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return PlainName(raw), fmt.Errorf("decode structured name: %w", err)
	}

	var sn StructuredName
	if s, ok := obj["name"].(string); ok {
		sn.Name = &s
	}
	sn.Weight = weightFromAny(obj["weight"])
	if s, ok := obj["material"].(string); ok {
		sn.Material = &s
	}
	return sn, nil
}

var numericToken = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ExtractWeight returns the first integer or decimal token in s ("2.1 kg" →
// 2.1). It returns nil when s holds no numeric token.
func ExtractWeight(s string) *float64 {
	tok := numericToken.FindString(s)
	if tok == "" {
		return nil
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func weightFromAny(v any) *float64 {
	switch w := v.(type) {
	case string:
		return ExtractWeight(w)
	case json.Number:
		f, err := w.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil
		}
		return &f
	case float64:
		if math.IsInf(w, 0) || math.IsNaN(w) {
			return nil
		}
		return &w
	}
	return nil
}

// weightFromJSON accepts a JSON number or string; null, absent and any other
// shape yield nil.
func weightFromJSON(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return weightFromAny(v)
}

// Normalize converts a scraped component change into its canonical shape.
// It never fails: an unparseable structured name is logged and kept as the
// plain name. Category passes through unchanged and is validated by the
// caller.
func Normalize(ctx context.Context, ch ComponentChange) NormalizedComponent {
	out := NormalizedComponent{
		Category: ch.Category,
		Weight:   weightFromJSON(ch.Weight),
		Material: ch.Material.Ptr(),
	}
	if !ch.Name.Present() {
		return out
	}

	parsed, err := ParseName(ch.Name.Value)
	if err != nil {
		logging.FromContext(ctx).Warn().
			Err(err).
			Str("category", ch.Category).
			Str("name", ch.Name.Value).
			Msg("malformed component name payload, using it as a plain name")
	}

	switch n := parsed.(type) {
	case PlainName:
		s := string(n)
		out.Name = &s
	case StructuredName:
		out.Name = n.Name
		if out.Weight == nil {
			out.Weight = n.Weight
		}
		if out.Material == nil {
			out.Material = n.Material
		}
	}
	return out
}

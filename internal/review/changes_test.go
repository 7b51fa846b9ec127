package review_test

import (
	"encoding/json"
	"testing"

	"bikecatalog/catalog-service/internal/review"
)

func TestOptional_AbsentNullValue(t *testing.T) {
	var b review.BasicChanges
	if err := json.Unmarshal([]byte(`{"name": null, "model_year": 2024}`), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !b.Name.Set || !b.Name.Null || b.Name.Present() {
		t.Errorf("name: want explicit null, got %+v", b.Name)
	}
	if b.Type.Set {
		t.Errorf("type: want absent, got %+v", b.Type)
	}
	if !b.ModelYear.Present() || b.ModelYear.Value != 2024 {
		t.Errorf("model_year: want 2024, got %+v", b.ModelYear)
	}
	if b.Name.Ptr() != nil || b.Type.Ptr() != nil {
		t.Error("Ptr of absent/null should be nil")
	}
}

func TestBasicChanges_Empty(t *testing.T) {
	var nilBasic *review.BasicChanges
	if !nilBasic.Empty() {
		t.Error("nil BasicChanges should be empty")
	}
	onlyNulls := &review.BasicChanges{Name: review.Null[string](), Type: review.Null[string]()}
	if !onlyNulls.Empty() {
		t.Error("BasicChanges with only nulls should be empty")
	}
	withYear := &review.BasicChanges{ModelYear: review.Some(2023)}
	if withYear.Empty() {
		t.Error("BasicChanges with a model year should not be empty")
	}
}

func TestChanges_DecodeComponents(t *testing.T) {
	raw := `{"components": {"c1": {"category": "wheels", "name": null, "weight": "1.5 kg", "material": null}}}`
	var ch review.Changes
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	c, ok := ch.Components["c1"]
	if !ok {
		t.Fatal("component c1 missing")
	}
	if c.Category != "wheels" {
		t.Errorf("category = %q, want wheels", c.Category)
	}
	if c.Name.Present() || c.Material.Present() {
		t.Error("name and material should not be present")
	}
	if string(c.Weight) != `"1.5 kg"` {
		t.Errorf("weight = %s, want \"1.5 kg\"", c.Weight)
	}
	if ch.Basic != nil {
		t.Error("basic should be nil when omitted")
	}
}

package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/dshills/oceancheck/internal/schema"
)

func TestDump_JSONShape(t *testing.T) {
	name := "Alice"
	likes := 3
	d := schema.Dump{
		Profile: schema.Profile{Name: &name},
		Posts:   []schema.Post{{FavoriteCount: &likes, Text: "hi"}},
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"profile":{"name":"Alice"},"posts":[{"favorite_count":3,"is_quote_status":false,"text":"hi"}]}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}
}

func TestParseOutcome_JSONShape(t *testing.T) {
	b, err := json.Marshal(schema.ParseOutcome{Success: false, Error: "boom"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(b); got != `{"success":false,"error":"boom"}` {
		t.Errorf("failure outcome = %s", got)
	}
}

func TestOCEAN_GetSet(t *testing.T) {
	var o schema.OCEAN
	for i, tr := range schema.Traits {
		o.Set(tr, float64(i+1))
	}
	want := schema.OCEAN{O: 1, C: 2, E: 3, A: 4, N: 5}
	if o != want {
		t.Errorf("Set produced %+v, want %+v", o, want)
	}
	for i, tr := range schema.Traits {
		if got := o.Get(tr); got != float64(i+1) {
			t.Errorf("Get(%q) = %v", tr, got)
		}
	}
	o.Set("x", 9)
	if o != want || o.Get("x") != 0 {
		t.Error("unknown traits must be ignored")
	}
}

func TestAssessment_MissingOCEAN(t *testing.T) {
	var a schema.Assessment
	if err := json.Unmarshal([]byte(`{"explanation":"x"}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.OCEAN != nil {
		t.Error("absent ocean must decode to nil")
	}
}

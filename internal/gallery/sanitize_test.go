package gallery

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func TestSanitizeNonFiniteFloats(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nan", math.NaN(), nil},
		{"positive inf", math.Inf(1), nil},
		{"negative inf", math.Inf(-1), nil},
		{"finite", 3.5, 3.5},
		{"float32 nan", float32(math.NaN()), nil},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("%s: Sanitize(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestSanitizePrimitivesPassThrough(t *testing.T) {
	for _, v := range []any{nil, "text", true, 42, int64(-7), uint8(255)} {
		if got := Sanitize(v); got != v {
			t.Errorf("Sanitize(%v) = %v, want unchanged", v, got)
		}
	}
}

func TestSanitizeRecursesIntoContainers(t *testing.T) {
	in := map[string]any{
		"scale": math.NaN(),
		"steps": 20,
		"nodes": []any{math.Inf(1), "ok", map[string]any{"cfg": math.Inf(-1)}},
	}
	want := map[string]any{
		"scale": nil,
		"steps": 20,
		"nodes": []any{nil, "ok", map[string]any{"cfg": nil}},
	}
	got := Sanitize(in)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sanitize = %v, want %v", got, want)
	}
	// Input must not be mutated.
	if !math.IsNaN(in["scale"].(float64)) {
		t.Error("Sanitize mutated its input")
	}
}

func TestSanitizeStringifiesUnknownTypes(t *testing.T) {
	type odd struct{ A int }
	got := Sanitize(odd{A: 1})
	if _, ok := got.(string); !ok {
		t.Errorf("Sanitize(struct) = %T, want string", got)
	}
}

func TestSnapshotPayloadIsJSONSafe(t *testing.T) {
	snap := Snapshot{"output": {
		"a.png": {
			Name:      "a.png",
			URL:       URLPrefix + "a.png",
			Timestamp: 1700000000.5,
			Date:      "2026-01-02 03:04:05",
			Metadata:  map[string]any{"cfg": math.NaN()},
			Kind:      KindImage,
		},
	}}

	data, err := json.Marshal(snap.Payload())
	if err != nil {
		t.Fatalf("payload not JSON-encodable: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	file := decoded["output"].(map[string]any)["a.png"].(map[string]any)
	if file["type"] != "image" {
		t.Errorf(`type = %v, want "image"`, file["type"])
	}
	if file["metadata"].(map[string]any)["cfg"] != nil {
		t.Errorf("NaN metadata survived: %v", file["metadata"])
	}
}

func TestDiffPayloadShape(t *testing.T) {
	e := entry("new.png", 2)
	d := Diff{"output": {
		"new.png":  {Action: ActionCreate, Fields: &e},
		"gone.png": {Action: ActionRemove},
	}}

	payload := d.Payload()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("diff payload not JSON-encodable: %v", err)
	}

	var decoded struct {
		Folders map[string]map[string]map[string]any `json:"folders"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	changes := decoded.Folders["output"]
	if changes["new.png"]["action"] != "create" {
		t.Errorf("create action = %v", changes["new.png"]["action"])
	}
	if _, ok := changes["new.png"]["fields"]; !ok {
		t.Error("create change missing fields")
	}
	if changes["gone.png"]["action"] != "remove" {
		t.Errorf("remove action = %v", changes["gone.png"]["action"])
	}
	if _, ok := changes["gone.png"]["fields"]; ok {
		t.Error("remove change should carry no fields")
	}
}

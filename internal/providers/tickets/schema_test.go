package tickets

import (
	"strings"
	"testing"

	"github.com/atlasdesk/switchboard/pkg/models"
)

func TestBuildToolParams(t *testing.T) {
	typ := outageType()
	params := BuildToolParams(&typ)

	if params["type"] != "object" || params["additionalProperties"] != false {
		t.Fatalf("envelope wrong: %v", params)
	}
	required, _ := params["required"].([]string)
	if len(required) != 2 {
		t.Fatalf("required = %v", required)
	}
	props := params["properties"].(map[string]any)

	address := props["address"].(map[string]any)
	if address["type"] != "string" || address["minLength"] != 5 || address["maxLength"] != 100 {
		t.Fatalf("address schema = %v", address)
	}

	symptom := props["symptom"].(map[string]any)
	if len(symptom["enum"].([]any)) != 2 {
		t.Fatalf("symptom schema = %v", symptom)
	}

	hours := props["downtime_hours"].(map[string]any)
	if hours["minimum"] != 0.0 || hours["maximum"] != 72.0 {
		t.Fatalf("number bounds = %v", hours)
	}
}

func TestFileFieldSchemaEmbedsUploadHint(t *testing.T) {
	typ := outageType()
	params := BuildToolParams(&typ)
	photo := params["properties"].(map[string]any)["router_photo"].(map[string]any)

	if photo["type"] != "array" || photo["minItems"] != 0 || photo["maxItems"] != 2 {
		t.Fatalf("file schema = %v", photo)
	}
	desc := photo["description"].(string)
	for _, want := range []string{"/v1/uploads", "min=0, max=2", "MIME: image/*", "ext: jpg,png"} {
		if !strings.Contains(desc, want) {
			t.Fatalf("description missing %q: %s", want, desc)
		}
	}
}

func TestFileCountBounds(t *testing.T) {
	cases := []struct {
		spec     models.FieldSpec
		min, max int
	}{
		{models.FieldSpec{Type: models.FieldFile}, 0, 1},
		{models.FieldSpec{Type: models.FieldFile, Required: true}, 1, 1},
		{models.FieldSpec{Type: models.FieldFile, MinCount: intPtr(2)}, 2, 2},
		{models.FieldSpec{Type: models.FieldFile, Required: true, MaxCount: intPtr(3)}, 1, 3},
	}
	for i, tc := range cases {
		gotMin, gotMax := fileCountBounds(&tc.spec)
		if gotMin != tc.min || gotMax != tc.max {
			t.Fatalf("case %d: bounds = (%d, %d), want (%d, %d)", i, gotMin, gotMax, tc.min, tc.max)
		}
	}
}

func TestCompileToolParams(t *testing.T) {
	typ := outageType()
	if _, err := CompileToolParams(typ.ID, BuildToolParams(&typ)); err != nil {
		t.Fatalf("valid spec does not compile: %v", err)
	}

	broken := map[string]any{"type": "object", "properties": map[string]any{
		"x": map[string]any{"type": "no-such-type"},
	}}
	if _, err := CompileToolParams("broken", broken); err == nil {
		t.Fatalf("invalid schema compiled")
	}
}

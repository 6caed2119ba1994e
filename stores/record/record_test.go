package record

import (
	"testing"

	"designlab/core"
)

func TestRoundTripKeepsOwner(t *testing.T) {
	in := &core.Design{
		ID:       "01J",
		UserID:   "github:42",
		TenantID: "acme",
		Name:     "Tee",
		Layers:   []core.Layer{{ID: "l1", Type: core.LayerTypeImage, Src: "a.png", Visible: true, DPI: 300}},
	}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.UserID != in.UserID || out.TenantID != in.TenantID {
		t.Errorf("owner = %q/%q, want %q/%q", out.UserID, out.TenantID, in.UserID, in.TenantID)
	}
	if len(out.Layers) != 1 || out.Layers[0].Src != "a.png" {
		t.Errorf("layers = %+v", out.Layers)
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"", ".", "..", "a/b", "../x"} {
		if err := ValidID(id); err == nil {
			t.Errorf("ValidID(%q) = nil, want error", id)
		}
	}
	if err := ValidID("01HZX"); err != nil {
		t.Errorf("ValidID() error = %v", err)
	}
}

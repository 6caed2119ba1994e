package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"designlab/core"
)

func newTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "designs.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d := &core.Design{
		UserID:  "u1",
		Name:    "Tee",
		Product: &core.ProductRef{ID: "p1", Name: "Classic Tee", ImageURL: "tee.png"},
		Layers: []core.Layer{
			{ID: "l1", Type: core.LayerTypeImage, Src: "a.png", Geometry: core.Geometry{Width: 200, Height: 200}, ZIndex: 0, Visible: true, DPI: 300},
		},
	}
	if err := s.Save(ctx, d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Get(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Product == nil || got.Product.Name != "Classic Tee" {
		t.Errorf("Product = %+v", got.Product)
	}
	if len(got.Layers) != 1 || got.Layers[0].Width != 200 {
		t.Errorf("Layers = %+v", got.Layers)
	}

	d.Name = "Renamed"
	d.Product = nil
	if err := s.Save(ctx, d); err != nil {
		t.Fatalf("Save() update error = %v", err)
	}
	list, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "Renamed" || list[0].Product != nil {
		t.Errorf("List() = %+v", list)
	}

	if err := s.Delete(ctx, "u1", d.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "u1", d.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestStore_GetOtherUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := &core.Design{UserID: "u1"}
	if err := s.Save(ctx, d); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "u2", d.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

package core

import (
	"context"
	"errors"
	"time"
)

// LayerTypeImage is the only drawable kind a design currently supports.
const LayerTypeImage = "image"

// ErrNotFound is returned by stores when a design, product or media object does not exist
// for the requesting user.
var ErrNotFound = errors.New("not found")

type (
	// Geometry is the on-canvas transform of a layer. Rotation is in degrees, clockwise,
	// around the layer's top-left corner.
	Geometry struct {
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
		Width    float64 `json:"width"`
		Height   float64 `json:"height"`
		Rotation float64 `json:"rotation"`
	}

	// Layer is one positioned image inside a design.
	Layer struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Src  string `json:"src"`
		Geometry
		ZIndex  int  `json:"zIndex"`
		Visible bool `json:"visible"`
		DPI     int  `json:"dpi"`
	}

	// ProductRef points at the catalog product whose artwork is drawn as the background.
	// The lab never mutates the product itself.
	ProductRef struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		ImageURL string `json:"imageUrl"`
	}

	// Design is a named composition of a product background and its layers.
	// Layers are kept in list order; paint order is decided by ZIndex.
	Design struct {
		ID        string      `json:"id,omitempty"`
		UserID    string      `json:"-"`
		TenantID  string      `json:"-"`
		Name      string      `json:"name"`
		Product   *ProductRef `json:"product,omitempty"`
		Layers    []Layer     `json:"layers"`
		CreatedAt time.Time   `json:"createdAt"`
		UpdatedAt time.Time   `json:"updatedAt"`
	}

	// DesignStore persists user-owned designs.
	// All operations are scoped to a specific user.
	DesignStore interface {
		// List returns metadata for all designs owned by a user.
		// Returned designs carry no layers to keep the response light.
		List(ctx context.Context, userID string) ([]*Design, error)

		// Get returns a single design, ensuring it belongs to the user.
		Get(ctx context.Context, userID, id string) (*Design, error)

		// Save creates or updates a design. An empty ID is assigned a new one.
		Save(ctx context.Context, design *Design) error

		// Delete removes a design, ensuring it belongs to the user.
		Delete(ctx context.Context, userID, id string) error
	}
)

// Clone returns a deep copy so callers can derive a new design value without aliasing
// the layer slice or product reference of the original.
func (d Design) Clone() Design {
	out := d
	if d.Product != nil {
		p := *d.Product
		out.Product = &p
	}
	if d.Layers != nil {
		out.Layers = make([]Layer, len(d.Layers))
		copy(out.Layers, d.Layers)
	}
	return out
}

// Summary drops the layers, as list endpoints do.
func (d Design) Summary() *Design {
	out := d.Clone()
	out.Layers = nil
	return &out
}

// LayerIndex returns the position of the layer with the given id, or -1.
func (d Design) LayerIndex(id string) int {
	for i := range d.Layers {
		if d.Layers[i].ID == id {
			return i
		}
	}
	return -1
}

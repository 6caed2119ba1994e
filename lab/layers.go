// Package lab implements the design-lab compositing model: the ordered layer stack of a
// design, its product background, and the editing session that applies user commands.
//
// Every command is a pure function that takes a design value and returns a new one; the
// input design is never modified.
package lab

import (
	"sort"

	"designlab/core"

	"github.com/google/uuid"
)

const (
	DefaultLayerSize = 200
	DefaultDPI       = 300

	// Advisory print-quality range. DPI outside it is reported, never corrected.
	MinPrintDPI = 72
	MaxPrintDPI = 300
)

// newLayerID is swapped in tests that need predictable ids.
var newLayerID = uuid.NewString

// AddLayer appends a new image layer on top of the stack.
func AddLayer(d core.Design, src string) (core.Design, core.Layer) {
	layer := core.Layer{
		ID:   newLayerID(),
		Type: core.LayerTypeImage,
		Src:  src,
		Geometry: core.Geometry{
			Width:  DefaultLayerSize,
			Height: DefaultLayerSize,
		},
		ZIndex:  len(d.Layers),
		Visible: true,
		DPI:     DefaultDPI,
	}

	out := d.Clone()
	out.Layers = append(out.Layers, layer)
	return out, layer
}

// ToggleVisibility flips the visible flag of one layer.
func ToggleVisibility(d core.Design, layerID string) (core.Design, bool) {
	return updateLayer(d, layerID, func(l *core.Layer) {
		l.Visible = !l.Visible
	})
}

// SetDPI overwrites the resolution hint of one layer as given.
func SetDPI(d core.Design, layerID string, dpi int) (core.Design, bool) {
	return updateLayer(d, layerID, func(l *core.Layer) {
		l.DPI = dpi
	})
}

// UpdateGeometry replaces the transform of one layer, as reported at the end of a
// drag, resize or rotate on the render surface.
func UpdateGeometry(d core.Design, layerID string, g core.Geometry) (core.Design, bool) {
	return updateLayer(d, layerID, func(l *core.Layer) {
		l.Geometry = g
	})
}

// Reorder moves one layer to newIndex in the list and restacks every layer so that the
// first list position is painted last: zIndex = N-1-position.
func Reorder(d core.Design, layerID string, newIndex int) (core.Design, bool) {
	from := d.LayerIndex(layerID)
	if from < 0 {
		return d, false
	}

	n := len(d.Layers)
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > n-1 {
		newIndex = n - 1
	}

	out := d.Clone()
	moved := out.Layers[from]
	rest := append(out.Layers[:from:from], out.Layers[from+1:]...)

	layers := make([]core.Layer, 0, n)
	layers = append(layers, rest[:newIndex]...)
	layers = append(layers, moved)
	layers = append(layers, rest[newIndex:]...)

	for i := range layers {
		layers[i].ZIndex = n - 1 - i
	}
	out.Layers = layers
	return out, true
}

// RemoveLayer deletes one layer. The remaining layers keep their relative stacking and are
// renumbered to stay dense.
func RemoveLayer(d core.Design, layerID string) (core.Design, bool) {
	idx := d.LayerIndex(layerID)
	if idx < 0 {
		return d, false
	}

	out := d.Clone()
	out.Layers = append(out.Layers[:idx:idx], out.Layers[idx+1:]...)
	densify(out.Layers)
	return out, true
}

// BindProduct sets the product whose artwork is drawn behind the layers.
func BindProduct(d core.Design, p core.ProductRef) core.Design {
	out := d.Clone()
	out.Product = &p
	return out
}

// PaintOrder returns the visible layers bottom to top.
func PaintOrder(d core.Design) []core.Layer {
	layers := make([]core.Layer, 0, len(d.Layers))
	for _, l := range d.Layers {
		if l.Visible {
			layers = append(layers, l)
		}
	}
	sort.SliceStable(layers, func(i, j int) bool {
		return layers[i].ZIndex < layers[j].ZIndex
	})
	return layers
}

func updateLayer(d core.Design, layerID string, fn func(*core.Layer)) (core.Design, bool) {
	idx := d.LayerIndex(layerID)
	if idx < 0 {
		return d, false
	}
	out := d.Clone()
	fn(&out.Layers[idx])
	return out, true
}

// densify renumbers z-indices to 0..N-1 keeping their current relative order.
func densify(layers []core.Layer) {
	order := make([]int, len(layers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return layers[order[a]].ZIndex < layers[order[b]].ZIndex
	})
	for z, i := range order {
		layers[i].ZIndex = z
	}
}

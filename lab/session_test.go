package lab

import (
	"errors"
	"testing"

	"designlab/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tshirt = core.ProductRef{ID: "p1", Name: "Classic Tee", ImageURL: "https://cdn.example.com/tee.png"}

func pngMedia(name string) core.MediaFile {
	return core.MediaFile{ID: name, Name: name, URL: "https://cdn.example.com/" + name, Type: "image/png"}
}

func TestSession_StateTransitions(t *testing.T) {
	s := NewSession(core.Design{})
	assert.Equal(t, StateEmpty, s.State())

	require.NoError(t, s.BindProduct(tshirt))
	assert.Equal(t, StateProductBound, s.State())

	layer, err := s.OnSelectMedia(pngMedia("logo.png"))
	require.NoError(t, err)
	assert.Equal(t, StateComposing, s.State())

	require.NoError(t, s.ToggleVisibility(layer.ID))
	assert.Equal(t, StateComposing, s.State(), "hiding every layer keeps the state")
}

func TestSession_OnChangeCalledPerMutation(t *testing.T) {
	var seen []core.Design
	s := NewSession(core.Design{}, WithOnChange(func(d core.Design) error {
		seen = append(seen, d)
		return nil
	}))

	require.NoError(t, s.BindProduct(tshirt))
	layer, err := s.OnSelectMedia(pngMedia("a.png"))
	require.NoError(t, err)
	require.NoError(t, s.SetDPI(layer.ID, 150))
	require.NoError(t, s.ApplyManipulation(layer.ID, core.Geometry{X: 5, Y: 6, Width: 50, Height: 60, Rotation: 90}))

	require.Len(t, seen, 4)
	last := seen[3]
	assert.Equal(t, 150, last.Layers[0].DPI)
	assert.Equal(t, 90.0, last.Layers[0].Rotation)

	seen[3].Layers[0].DPI = 1
	assert.Equal(t, 150, s.Design().Layers[0].DPI, "hook receives a copy")
}

func TestSession_UnknownLayerIsIgnored(t *testing.T) {
	calls := 0
	s := NewSession(core.Design{Product: &tshirt}, WithOnChange(func(core.Design) error {
		calls++
		return nil
	}))
	_, err := s.OnSelectMedia(pngMedia("a.png"))
	require.NoError(t, err)
	before := s.Design()

	assert.NoError(t, s.ToggleVisibility("ghost"))
	assert.NoError(t, s.SetDPI("ghost", 1))
	assert.NoError(t, s.Reorder("ghost", 0))
	assert.NoError(t, s.RemoveLayer("ghost"))
	assert.NoError(t, s.ApplyManipulation("ghost", core.Geometry{Width: 1, Height: 1}))

	assert.Equal(t, before, s.Design())
	assert.Equal(t, 1, calls)
}

func TestSession_RejectsNonImageMedia(t *testing.T) {
	s := NewSession(core.Design{Product: &tshirt})
	_, err := s.OnSelectMedia(core.MediaFile{Name: "notes.pdf", URL: "https://x/notes.pdf", Type: "application/pdf"})

	assert.ErrorIs(t, err, ErrNotImage)
	assert.Empty(t, s.Design().Layers)
}

func TestSession_MediaBeforeProduct(t *testing.T) {
	s := NewSession(core.Design{})
	_, err := s.OnSelectMedia(pngMedia("a.png"))
	assert.ErrorIs(t, err, ErrNoProduct)
	assert.Equal(t, StateEmpty, s.State())
}

func TestSession_PanicKeepsDesign(t *testing.T) {
	s := NewSession(core.Design{Product: &tshirt})
	_, err := s.OnSelectMedia(pngMedia("a.png"))
	require.NoError(t, err)
	before := s.Design()

	err = s.Apply("explode", func(d core.Design) (core.Design, bool) {
		d.Layers[0].DPI = 1
		panic("boom")
	})

	assert.ErrorIs(t, err, ErrMutationFailed)
	assert.Equal(t, before, s.Design())
}

func TestSession_HookErrorIsReturned(t *testing.T) {
	hookErr := errors.New("store offline")
	s := NewSession(core.Design{}, WithOnChange(func(core.Design) error { return hookErr }))

	err := s.BindProduct(tshirt)
	assert.ErrorIs(t, err, hookErr)
}

func TestSession_Warnings(t *testing.T) {
	s := NewSession(core.Design{Product: &tshirt})
	low, _ := s.OnSelectMedia(pngMedia("a.png"))
	ok, _ := s.OnSelectMedia(pngMedia("b.png"))
	require.NoError(t, s.SetDPI(low.ID, 50))
	require.NoError(t, s.SetDPI(ok.ID, 150))

	warnings := s.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, DPIWarning{LayerID: low.ID, DPI: 50, Advice: DPILow}, warnings[0])
}

func TestSession_Rename(t *testing.T) {
	calls := 0
	s := NewSession(core.Design{Name: "draft"}, WithOnChange(func(core.Design) error {
		calls++
		return nil
	}))
	require.NoError(t, s.Rename("draft"))
	require.NoError(t, s.Rename("summer drop"))
	assert.Equal(t, "summer drop", s.Design().Name)
	assert.Equal(t, 1, calls)
}

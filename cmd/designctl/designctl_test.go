package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeSolidPNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

const sampleDesign = `{
  "name": "Launch tee",
  "product": {"id": "tee", "name": "Classic Tee", "imageUrl": "shirt.png"},
  "layers": [
    {"id": "logo", "type": "image", "src": "logo.png", "x": 10, "y": 10, "width": 20, "height": 20, "zIndex": 0, "visible": true, "dpi": 300},
    {"id": "tiny", "type": "image", "src": "missing.png", "x": 0, "y": 0, "width": 5, "height": 5, "zIndex": 1, "visible": true, "dpi": 40}
  ]
}`

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"render", "fit", "validate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.NotEmpty(t, cmd.Short, name)
	}
}

func TestFit(t *testing.T) {
	out, err := run(t, "fit", "800", "600", "400", "400")
	require.NoError(t, err)
	assert.Equal(t, "scale=1.5 width=600 height=600 left=100 top=0\n", out)

	out, err = run(t, "fit", "800", "600", "1600", "600")
	require.NoError(t, err)
	assert.Equal(t, "scale=0.5 width=800 height=300 left=0 top=150\n", out)
}

func TestFit_BadInput(t *testing.T) {
	_, err := run(t, "fit", "800", "600", "wide", "400")
	assert.Error(t, err)

	_, err = run(t, "fit", "800", "600", "0", "400")
	assert.Error(t, err)

	_, err = run(t, "fit", "800")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "design.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDesign), 0644))

	out, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (composing, 2 layers)")
	assert.Contains(t, out, "warning: layer tiny has 40 DPI (low")
	assert.NotContains(t, out, "layer logo")
}

func TestValidate_Rejects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "design.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x","layers":[{"id":"t","type":"text","src":"a","width":1,"height":1}]}`), 0644))

	_, err := run(t, "validate", path)
	assert.Error(t, err)

	_, err = run(t, "validate", filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "shirt.png"), 50, 50, color.RGBA{B: 255, A: 255})
	writeSolidPNG(t, filepath.Join(dir, "logo.png"), 8, 8, color.RGBA{G: 255, A: 255})
	designPath := filepath.Join(dir, "design.json")
	require.NoError(t, os.WriteFile(designPath, []byte(sampleDesign), 0644))

	outPath := filepath.Join(dir, "out.png")
	out, err := run(t, "render", designPath, "-o", outPath, "--width", "100", "--height", "100")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Rendered Launch tee (100x100)"), out)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	// The logo covers (10,10)-(30,30) on top of the blue product; the missing layer is skipped.
	r, g, b, _ := img.At(20, 20).RGBA()
	assert.True(t, g>>8 > 200 && r>>8 < 50 && b>>8 < 50, "logo pixel %v", img.At(20, 20))
	r, g, b, _ = img.At(60, 60).RGBA()
	assert.True(t, b>>8 > 200 && r>>8 < 50 && g>>8 < 50, "product pixel %v", img.At(60, 60))
}

func TestRender_JPEGFormat(t *testing.T) {
	dir := t.TempDir()
	designPath := filepath.Join(dir, "design.json")
	require.NoError(t, os.WriteFile(designPath, []byte(`{"name":"Blank","layers":[]}`), 0644))

	outPath := filepath.Join(dir, "preview.out")
	_, err := run(t, "render", designPath, "-o", outPath, "--format", "jpg")
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xFF, 0xD8}), "not a jpeg")
}

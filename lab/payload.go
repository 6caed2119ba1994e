package lab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"designlab/core"

	"github.com/tidwall/gjson"
)

var (
	ErrNotImage            = errors.New("please upload an image file")
	ErrInvalidMedia        = errors.New("missing required fields: name, url, and type are required")
	ErrUnsupportedLayer    = errors.New("unsupported layer type")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrDuplicateLayerID    = errors.New("duplicate layer id")
	ErrNonPositiveGeometry = errors.New("layer width and height must be positive")
)

// IsImageType reports whether a MIME type names an image.
func IsImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// ValidateMedia checks a picker payload before it is turned into a layer.
func ValidateMedia(m core.MediaFile) error {
	if m.Name == "" || m.URL == "" || m.Type == "" {
		return ErrInvalidMedia
	}
	if !IsImageType(m.Type) {
		return ErrNotImage
	}
	return nil
}

// DecodeLayer parses one layer from JSON. The "type" tag is checked first so that an
// unknown kind is rejected with a clear error instead of a field mismatch.
func DecodeLayer(data []byte) (core.Layer, error) {
	if !gjson.ValidBytes(data) {
		return core.Layer{}, ErrInvalidPayload
	}
	if kind := gjson.GetBytes(data, "type"); kind.Exists() && kind.String() != core.LayerTypeImage {
		return core.Layer{}, fmt.Errorf("%w: %q", ErrUnsupportedLayer, kind.String())
	}

	var l core.Layer
	if err := decodeStrict(data, &l); err != nil {
		return core.Layer{}, err
	}
	if l.Type == "" {
		l.Type = core.LayerTypeImage
	}
	if err := validateLayer(l); err != nil {
		return core.Layer{}, err
	}
	return l, nil
}

// DecodeDesign parses a whole design document, as saved from the lab or read by the CLI.
// Every layer goes through the same checks as DecodeLayer.
func DecodeDesign(data []byte) (core.Design, error) {
	if !gjson.ValidBytes(data) {
		return core.Design{}, ErrInvalidPayload
	}

	var raw struct {
		ID      string            `json:"id"`
		Name    string            `json:"name"`
		Product *core.ProductRef  `json:"product"`
		Layers  []json.RawMessage `json:"layers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.Design{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	d := core.Design{
		ID:      raw.ID,
		Name:    raw.Name,
		Product: raw.Product,
		Layers:  make([]core.Layer, 0, len(raw.Layers)),
	}
	seen := make(map[string]struct{}, len(raw.Layers))
	for i, rl := range raw.Layers {
		l, err := DecodeLayer(rl)
		if err != nil {
			return core.Design{}, fmt.Errorf("layer %d: %w", i, err)
		}
		if _, dup := seen[l.ID]; dup {
			return core.Design{}, fmt.Errorf("layer %d: %w: %s", i, ErrDuplicateLayerID, l.ID)
		}
		seen[l.ID] = struct{}{}
		d.Layers = append(d.Layers, l)
	}
	densify(d.Layers)
	return d, nil
}

// DecodeGeometry parses the transform sent when a manipulation ends.
func DecodeGeometry(data []byte) (core.Geometry, error) {
	var g core.Geometry
	if err := decodeStrict(data, &g); err != nil {
		return core.Geometry{}, err
	}
	if g.Width <= 0 || g.Height <= 0 {
		return core.Geometry{}, ErrNonPositiveGeometry
	}
	return g, nil
}

func validateLayer(l core.Layer) error {
	if l.ID == "" {
		return fmt.Errorf("%w: layer id is required", ErrInvalidPayload)
	}
	if l.Src == "" {
		return fmt.Errorf("%w: layer src is required", ErrInvalidPayload)
	}
	if l.Width <= 0 || l.Height <= 0 {
		return ErrNonPositiveGeometry
	}
	return nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

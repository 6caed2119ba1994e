package lab

import (
	"errors"
	"fmt"
)

var ErrDegenerateSize = errors.New("canvas and image sizes must be positive")

// Placement is where a background image lands on the canvas after a contain fit.
type Placement struct {
	Scale  float64 `json:"scale"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
}

// Contain scales an image to fit entirely inside the canvas while keeping its aspect ratio
// and centers it along the axis that has room to spare. An image at least as wide
// (relative to its height) as the canvas is scaled to the canvas width.
func Contain(canvasW, canvasH, imgW, imgH float64) (Placement, error) {
	if canvasW <= 0 || canvasH <= 0 || imgW <= 0 || imgH <= 0 {
		return Placement{}, fmt.Errorf("contain %vx%v in %vx%v: %w", imgW, imgH, canvasW, canvasH, ErrDegenerateSize)
	}

	canvasAspect := canvasW / canvasH
	imgAspect := imgW / imgH

	if imgAspect >= canvasAspect {
		scale := canvasW / imgW
		h := imgH * scale
		return Placement{
			Scale:  scale,
			Width:  canvasW,
			Height: h,
			Top:    (canvasH - h) / 2,
		}, nil
	}

	scale := canvasH / imgH
	w := imgW * scale
	return Placement{
		Scale:  scale,
		Width:  w,
		Height: canvasH,
		Left:   (canvasW - w) / 2,
	}, nil
}

// DPIAdvice classifies a layer's resolution hint for print.
type DPIAdvice string

const (
	DPIOK   DPIAdvice = "ok"
	DPILow  DPIAdvice = "low"
	DPIHigh DPIAdvice = "high"
)

// CheckDPI reports whether dpi is inside the print range. It is advisory only.
func CheckDPI(dpi int) DPIAdvice {
	switch {
	case dpi < MinPrintDPI:
		return DPILow
	case dpi > MaxPrintDPI:
		return DPIHigh
	default:
		return DPIOK
	}
}

// DPIWarning names a layer whose DPI falls outside the print range.
type DPIWarning struct {
	LayerID string    `json:"layerId"`
	DPI     int       `json:"dpi"`
	Advice  DPIAdvice `json:"advice"`
}

package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"

	"wifistate-go/internal/controller"
)

// IconSize is the edge length of generated tray icons in pixels.
const IconSize = 22

const bars = 4

var (
	colorIdle    = color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
	colorWifi    = color.RGBA{R: 0x2e, G: 0xb8, B: 0x4b, A: 0xff}
	colorMobile  = color.RGBA{R: 0x2f, G: 0x80, B: 0xed, A: 0xff}
	colorWarning = color.RGBA{R: 0xf2, G: 0x99, B: 0x1c, A: 0xff}
	colorEmpty   = color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0x80}
)

// iconSpec is the number of lit bars (of 8 half-steps) and their color.
type iconSpec struct {
	level int
	fill  color.RGBA
}

var iconSpecs = map[controller.Icon]iconSpec{
	controller.IconDisabled:         {0, colorIdle},
	controller.IconReserved:         {1, colorIdle},
	controller.IconEnabling:         {2, colorIdle},
	controller.IconEnabled:          {3, colorWifi},
	controller.IconScanning:         {4, colorWifi},
	controller.IconConnecting:       {5, colorWifi},
	controller.IconCompleted:        {6, colorWifi},
	controller.IconObtainingAddress: {7, colorWifi},
	controller.IconConnected:        {8, colorWifi},
	controller.IconMobileConnecting: {4, colorMobile},
	controller.IconMobileConnected:  {8, colorMobile},
	controller.IconWarning:          {8, colorWarning},
}

var (
	iconMu    sync.Mutex
	iconCache = map[controller.Icon][]byte{}
)

// IconPNG returns the PNG image of icon. Unknown icons render as disabled.
func IconPNG(icon controller.Icon) []byte {
	iconMu.Lock()
	defer iconMu.Unlock()

	if data, ok := iconCache[icon]; ok {
		return data
	}
	spec, ok := iconSpecs[icon]
	if !ok {
		spec = iconSpecs[controller.IconDisabled]
	}
	data := renderBars(spec)
	iconCache[icon] = data
	return data
}

// renderBars draws four rising signal bars. Each bar covers two half-steps;
// a bar with one lit half-step is drawn at half height.
func renderBars(spec iconSpec) []byte {
	img := image.NewRGBA(image.Rect(0, 0, IconSize, IconSize))

	const (
		barWidth = 4
		gap      = 1
		margin   = 1
	)
	for b := 0; b < bars; b++ {
		x0 := margin + b*(barWidth+gap)
		full := (b + 1) * (IconSize - 2*margin) / bars
		lit := spec.level - 2*b
		switch {
		case lit >= 2:
			fillBar(img, x0, barWidth, full, spec.fill)
		case lit == 1:
			fillBar(img, x0, barWidth, full, colorEmpty)
			fillBar(img, x0, barWidth, full/2, spec.fill)
		default:
			fillBar(img, x0, barWidth, full, colorEmpty)
		}
	}

	var buf bytes.Buffer
	// Encoding an in-memory RGBA image cannot fail.
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// fillBar paints a w-wide, h-tall block resting on the bottom margin.
func fillBar(img *image.RGBA, x0, w, h int, c color.RGBA) {
	bottom := IconSize - 2
	for y := bottom - h + 1; y <= bottom; y++ {
		for x := x0; x < x0+w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

const iconSize = 22

var iconColors = map[Icon]color.NRGBA{
	IconConnected:    {R: 0x44, G: 0xad, B: 0x4d, A: 0xff},
	IconAcquiring:    {R: 0xff, G: 0xd5, B: 0x24, A: 0xff},
	IconDisconnected: {R: 0xe3, G: 0x40, B: 0x39, A: 0xff},
	IconError:        {R: 0xe3, G: 0x40, B: 0x39, A: 0xff},
	IconUnknown:      {R: 0x8a, G: 0x8a, B: 0x8a, A: 0xff},
}

var (
	iconMu    sync.Mutex
	iconCache = map[Icon][]byte{}
)

// IconPNG returns the PNG bytes drawn for icon. Unknown and Error icons
// are rings, the others filled discs.
func IconPNG(icon Icon) []byte {
	iconMu.Lock()
	defer iconMu.Unlock()
	if data, ok := iconCache[icon]; ok {
		return data
	}
	data := drawIcon(icon)
	iconCache[icon] = data
	return data
}

func drawIcon(icon Icon) []byte {
	c, ok := iconColors[icon]
	if !ok {
		c = iconColors[IconUnknown]
	}
	ring := icon == IconUnknown || icon == IconError

	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	center := float64(iconSize-1) / 2
	outer := center - 1
	inner := outer - 3
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			d2 := dx*dx + dy*dy
			if d2 > outer*outer || (ring && d2 < inner*inner) {
				continue
			}
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

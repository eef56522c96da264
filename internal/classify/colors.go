package classify

// Color is an opaque RGB triple
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Table holds the class colors of one overlay. Unused classes are zero.
type Table struct {
	Deforestation    Color `json:"deforestation"`
	OldDeforestation Color `json:"old_deforestation"`
	Degradation      Color `json:"degradation"`
	Forest           Color `json:"forest"`
	Cloud            Color `json:"cloud"`
	Water            Color `json:"water"`
}

var (
	white = Color{R: 255, G: 255, B: 255}
	black = Color{}
)

// Color tables per operation. The three overlays come from different
// products and deliberately keep their own palettes.
var (
	SADTable = Table{
		Deforestation: Color{R: 255, G: 46, B: 0},
		Degradation:   Color{R: 255, G: 199, B: 44},
		Forest:        Color{R: 32, G: 224, B: 32},
	}

	BaselineTable = Table{
		Deforestation: Color{R: 0, G: 0, B: 0},
		Degradation:   Color{R: 0, G: 255, B: 254},
		Forest:        Color{R: 0, G: 153, B: 77},
		Cloud:         Color{R: 102, G: 102, B: 102},
		Water:         Color{R: 0, G: 0, B: 255},
	}

	TimeSeriesTable = Table{
		Deforestation:    Color{R: 255, G: 255, B: 0},
		OldDeforestation: Color{R: 0, G: 0, B: 0},
		Degradation:      Color{R: 0, G: 255, B: 254},
		Forest:           Color{R: 0, G: 153, B: 77},
		Cloud:            Color{R: 102, G: 102, B: 102},
		Water:            Color{R: 0, G: 0, B: 255},
	}
)

// put writes color and alpha into the RGBA pixel at offset i
func put(buf []byte, i int, c Color, alpha uint8) {
	buf[i] = c.R
	buf[i+1] = c.G
	buf[i+2] = c.B
	buf[i+3] = alpha
}

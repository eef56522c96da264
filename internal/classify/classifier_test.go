package classify

import (
	"testing"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

func pixel(p, alpha uint8) []byte {
	return []byte{p, p, p, alpha}
}

func mustStrategy(t *testing.T, op models.Operation) Strategy {
	t.Helper()
	s, err := GetStrategy(op)
	if err != nil {
		t.Fatalf("GetStrategy(%s): %v", op, err)
	}
	return s
}

func assertPixel(t *testing.T, buf []byte, c Color, alpha uint8) {
	t.Helper()
	got := Color{R: buf[0], G: buf[1], B: buf[2]}
	if got != c || buf[3] != alpha {
		t.Fatalf("pixel = %v/%d, want %v/%d", got, buf[3], c, alpha)
	}
}

func TestSinglePixelBelowLowIsDeforestation(t *testing.T) {
	s := mustStrategy(t, models.OperationBaseline)
	buf := pixel(100, 255)
	th := Thresholds{Low: 165, High: 175}
	if err := s.Classify(buf, th, DefaultVisibility(), nil); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	assertPixel(t, buf, BaselineTable.Deforestation, 255)
}

func TestVisibilityScalesAlpha(t *testing.T) {
	s := mustStrategy(t, models.OperationSAD)
	vis := DefaultVisibility()
	if err := vis.Set("deforestation", false); err != nil {
		t.Fatal(err)
	}
	buf := pixel(10, 255)
	if err := s.Classify(buf, DefaultThresholds(models.OperationSAD), vis, nil); err != nil {
		t.Fatal(err)
	}
	assertPixel(t, buf, SADTable.Deforestation, 0)
}

func TestTransparentPixelsUntouched(t *testing.T) {
	s := mustStrategy(t, models.OperationSAD)
	buf := []byte{7, 8, 9, 0}
	if err := s.Classify(buf, DefaultThresholds(models.OperationSAD), DefaultVisibility(), nil); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 7 || buf[1] != 8 || buf[2] != 9 || buf[3] != 0 {
		t.Fatalf("transparent pixel modified: %v", buf)
	}
}

func rank(c Class) int {
	switch c {
	case ClassDeforestation:
		return 0
	case ClassDegradation:
		return 1
	case ClassForest:
		return 2
	}
	return -1
}

func TestClassificationMonotonic(t *testing.T) {
	for _, op := range []models.Operation{models.OperationSAD, models.OperationBaseline} {
		s := mustStrategy(t, op)
		th := Thresholds{Low: 80, High: 120}

		prev := -1
		for p := 0; p < EncodingLimit; p++ {
			buf := pixel(uint8(p), 255)
			if err := s.Classify(buf, th, DefaultVisibility(), nil); err != nil {
				t.Fatal(err)
			}
			r := rank(ClassOf(buf, 0, s.Table()))
			if r < 0 {
				t.Fatalf("%s: p=%d produced no class", op, p)
			}
			if r < prev {
				t.Fatalf("%s: class decreased at p=%d", op, p)
			}
			prev = r
		}

		// raising the low threshold never moves a pixel towards forest
		for p := 0; p < EncodingLimit; p += 7 {
			prev := 3
			for low := 0; low <= 120; low += 10 {
				buf := pixel(uint8(p), 255)
				if err := s.Classify(buf, Thresholds{Low: low, High: 120}, DefaultVisibility(), nil); err != nil {
					t.Fatal(err)
				}
				r := rank(ClassOf(buf, 0, s.Table()))
				if r > prev {
					t.Fatalf("%s: p=%d moved up when low rose to %d", op, p, low)
				}
				prev = r
			}
		}
	}
}

func TestReservedCodesOverride(t *testing.T) {
	tests := []struct {
		name  string
		op    models.Operation
		p     uint8
		color Color
		alpha uint8
	}{
		{"sad white", models.OperationSAD, 201, white, 255},
		{"sad black", models.OperationSAD, 205, black, 255},
		{"sad 203", models.OperationSAD, 203, SADTable.Deforestation, 255},
		{"sad 207", models.OperationSAD, 207, SADTable.Deforestation, 255},
		{"sad other", models.OperationSAD, 230, SADTable.Forest, 255},
		{"baseline white", models.OperationBaseline, 201, white, 255},
		{"baseline cloud", models.OperationBaseline, 202, BaselineTable.Cloud, 255},
		{"baseline water", models.OperationBaseline, 255, BaselineTable.Water, 255},
		{"baseline other", models.OperationBaseline, 210, BaselineTable.Forest, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustStrategy(t, tt.op)
			buf := pixel(tt.p, 255)
			// thresholds that would otherwise classify the code as deforestation
			th := Thresholds{Low: 255, High: 255}
			if err := s.Classify(buf, th, DefaultVisibility(), nil); err != nil {
				t.Fatal(err)
			}
			assertPixel(t, buf, tt.color, tt.alpha)
		})
	}
}

func timeSeriesMasks(n int, fill map[string]uint8) Masks {
	m := Masks{}
	for _, name := range NewTimeSeries().Rasters() {
		buf := make([]byte, n*4)
		for i := 0; i < len(buf); i += 4 {
			buf[i] = fill[name]
			buf[i+3] = 255
		}
		m[name] = buf
	}
	return m
}

func TestTimeSeriesRules(t *testing.T) {
	th := DefaultThresholds(models.OperationTimeSeries)
	tests := []struct {
		name  string
		p     uint8
		masks map[string]uint8
		color Color
		alpha uint8
	}{
		{"reserved 203", 203, nil, white, 255},
		{"old deforestation", 220, nil, TimeSeriesTable.OldDeforestation, 255},
		{"deforestation", 100, nil, TimeSeriesTable.Deforestation, 255},
		{"degradation", 170, nil, TimeSeriesTable.Degradation, 255},
		{"forest", 190, nil, TimeSeriesTable.Forest, 255},
		{"cloud", 190, map[string]uint8{RasterCloudRegion: 1, RasterCloud: 10}, TimeSeriesTable.Cloud, 255},
		{"cloud below threshold", 190, map[string]uint8{RasterCloudRegion: 1, RasterCloud: 3}, TimeSeriesTable.Forest, 255},
		{"water", 100, map[string]uint8{RasterShade: 200, RasterGV: 10, RasterSoil: 10}, TimeSeriesTable.Water, 255},
		{"water after cloud", 100, map[string]uint8{RasterCloudRegion: 1, RasterCloud: 10, RasterShade: 200, RasterGV: 10, RasterSoil: 10}, TimeSeriesTable.Water, 255},
		{"no water on old deforestation", 220, map[string]uint8{RasterShade: 200, RasterGV: 10, RasterSoil: 10}, TimeSeriesTable.OldDeforestation, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := pixel(tt.p, 255)
			if err := NewTimeSeries().Classify(buf, th, DefaultVisibility(), timeSeriesMasks(1, tt.masks)); err != nil {
				t.Fatal(err)
			}
			assertPixel(t, buf, tt.color, tt.alpha)
		})
	}
}

func TestTimeSeriesMissingRaster(t *testing.T) {
	m := timeSeriesMasks(1, nil)
	delete(m, RasterSoil)
	err := NewTimeSeries().Classify(pixel(10, 255), DefaultThresholds(models.OperationTimeSeries), DefaultVisibility(), m)
	if err == nil {
		t.Fatal("expected error for missing soil raster")
	}
}

func TestUnknownOperation(t *testing.T) {
	if _, err := GetStrategy(models.OperationNone); err == nil {
		t.Fatal("expected error for operation without strategy")
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := (Thresholds{Low: 60, High: 40}).Validate(); err == nil {
		t.Fatal("expected low > high to be rejected")
	}
	if err := DefaultThresholds(models.OperationTimeSeries).Validate(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
}

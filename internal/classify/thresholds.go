package classify

import (
	"fmt"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// Thresholds are the slider values driving classification. Low/High serve the
// single-threshold overlays; the remaining fields drive the time-series one.
type Thresholds struct {
	Low  int `json:"low"`
	High int `json:"high"`

	Def         int `json:"def"`
	Deg         int `json:"deg"`
	Shade       int `json:"shade"` // percent
	GV          int `json:"gv"`    // percent
	Soil        int `json:"soil"`  // percent
	Cloud       int `json:"cloud"`
	Temperature int `json:"temperature"` // carried, not used by the rule
}

// DefaultThresholds returns the initial slider values for an operation
func DefaultThresholds(op models.Operation) Thresholds {
	switch op {
	case models.OperationBaseline:
		return Thresholds{Low: 165, High: 175}
	case models.OperationTimeSeries:
		return Thresholds{Def: 165, Deg: 175, Shade: 70, GV: 15, Soil: 10, Cloud: 7, Temperature: 22}
	default:
		return Thresholds{Low: 40, High: 60}
	}
}

// Validate checks value ranges
func (t Thresholds) Validate() error {
	for name, v := range map[string]int{
		"low": t.Low, "high": t.High, "def": t.Def, "deg": t.Deg, "cloud": t.Cloud,
	} {
		if v < 0 || v > 255 {
			return fmt.Errorf("threshold %s=%d out of range 0..255", name, v)
		}
	}
	for name, v := range map[string]int{"shade": t.Shade, "gv": t.GV, "soil": t.Soil} {
		if v < 0 || v > 100 {
			return fmt.Errorf("threshold %s=%d out of range 0..100", name, v)
		}
	}
	if t.Low > t.High {
		return fmt.Errorf("low threshold %d above high threshold %d", t.Low, t.High)
	}
	if t.Def > t.Deg {
		return fmt.Errorf("def threshold %d above deg threshold %d", t.Def, t.Deg)
	}
	return nil
}

// LayerVisibility holds per-class alpha multipliers, each 0 or 255
type LayerVisibility struct {
	ShowDeforestation uint8 `json:"show_deforestation"`
	ShowDegradation   uint8 `json:"show_degradation"`
	ShowForest        uint8 `json:"show_forest"`
}

// DefaultVisibility shows every class
func DefaultVisibility() LayerVisibility {
	return LayerVisibility{
		ShowDeforestation: 255,
		ShowDegradation:   255,
		ShowForest:        255,
	}
}

// Set toggles a class by its toolbar name
func (v *LayerVisibility) Set(class string, on bool) error {
	alpha := uint8(0)
	if on {
		alpha = 255
	}
	switch class {
	case "deforestation":
		v.ShowDeforestation = alpha
	case "degradation":
		v.ShowDegradation = alpha
	case "forest":
		v.ShowForest = alpha
	default:
		return fmt.Errorf("unknown class %q", class)
	}
	return nil
}

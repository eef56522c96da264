package classify

import (
	"fmt"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

type timeSeries struct{}

// NewTimeSeries returns the strategy for the time-series overlay, which
// combines the primary raster with the fraction and cloud masks
func NewTimeSeries() Strategy { return timeSeries{} }

func (timeSeries) Operation() models.Operation { return models.OperationTimeSeries }
func (timeSeries) Table() Table                { return TimeSeriesTable }

func (timeSeries) Rasters() []string {
	return []string{RasterGV, RasterShade, RasterSoil, RasterCloud, RasterCloudRegion, RasterTemperature}
}

func (ts timeSeries) Classify(buf []byte, th Thresholds, vis LayerVisibility, masks Masks) error {
	if err := checkBuffer(buf); err != nil {
		return err
	}
	for _, name := range ts.Rasters() {
		m, ok := masks[name]
		if !ok {
			return fmt.Errorf("missing %s raster", name)
		}
		if len(m) != len(buf) {
			return fmt.Errorf("%s raster has %d bytes, want %d", name, len(m), len(buf))
		}
	}

	gv, shade, soil := masks[RasterGV], masks[RasterShade], masks[RasterSoil]
	cloud, region := masks[RasterCloud], masks[RasterCloudRegion]

	shadeMin := 255 * th.Shade / 100
	gvMax := 255 * th.GV / 100
	soilMax := 255 * th.Soil / 100
	table := TimeSeriesTable

	for i := 0; i < len(buf); i += 4 {
		if buf[i+3] == 0 {
			continue
		}
		p := int(buf[i])
		switch {
		case p == 203:
			put(buf, i, white, 255)
		case p > 200:
			put(buf, i, table.OldDeforestation, 255)
		case p <= th.Def:
			put(buf, i, table.Deforestation, vis.ShowDeforestation)
		case p > th.Deg:
			put(buf, i, table.Forest, vis.ShowForest)
		default:
			put(buf, i, table.Degradation, vis.ShowDegradation)
		}

		if region[i] != 0 && int(cloud[i]) >= th.Cloud && p != 255 {
			put(buf, i, table.Cloud, 255)
		}
		if int(shade[i]) >= shadeMin && int(gv[i]) <= gvMax && int(soil[i]) <= soilMax && p < 200 {
			put(buf, i, table.Water, 255)
		}
	}
	return nil
}

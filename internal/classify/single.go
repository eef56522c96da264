package classify

import "github.com/jengzang/forestwatch-backend-go/internal/models"

// reservedFunc paints a pixel whose code is at or above EncodingLimit
type reservedFunc func(buf []byte, i int, p uint8, table Table, vis LayerVisibility)

// singleThreshold implements the low/high rule shared by the sad and baseline
// overlays. Only the reserved code table differs between them.
type singleThreshold struct {
	op       models.Operation
	table    Table
	reserved reservedFunc
}

func (s *singleThreshold) Operation() models.Operation { return s.op }
func (s *singleThreshold) Table() Table                { return s.table }
func (s *singleThreshold) Rasters() []string           { return nil }

func (s *singleThreshold) Classify(buf []byte, th Thresholds, vis LayerVisibility, _ Masks) error {
	if err := checkBuffer(buf); err != nil {
		return err
	}
	for i := 0; i < len(buf); i += 4 {
		if buf[i+3] == 0 {
			continue
		}
		p := buf[i]
		switch {
		case int(p) < th.Low:
			put(buf, i, s.table.Deforestation, vis.ShowDeforestation)
		case int(p) > th.High:
			put(buf, i, s.table.Forest, vis.ShowForest)
		default:
			put(buf, i, s.table.Degradation, vis.ShowDegradation)
		}
		if p >= EncodingLimit {
			s.reserved(buf, i, p, s.table, vis)
		}
	}
	return nil
}

// NewSAD returns the strategy for the periodic deforestation alert overlay
func NewSAD() Strategy {
	return &singleThreshold{op: models.OperationSAD, table: SADTable, reserved: sadReserved}
}

// NewBaseline returns the strategy for the baseline overlay
func NewBaseline() Strategy {
	return &singleThreshold{op: models.OperationBaseline, table: BaselineTable, reserved: baselineReserved}
}

func sadReserved(buf []byte, i int, p uint8, table Table, vis LayerVisibility) {
	switch p {
	case 201:
		put(buf, i, white, 255)
	case 205:
		put(buf, i, black, 255)
	case 203, 207:
		put(buf, i, table.Deforestation, vis.ShowDeforestation)
	default:
		put(buf, i, table.Forest, vis.ShowForest)
	}
}

func baselineReserved(buf []byte, i int, p uint8, table Table, vis LayerVisibility) {
	switch p {
	case 201:
		put(buf, i, white, 255)
	case 202:
		put(buf, i, table.Cloud, 255)
	case 255:
		put(buf, i, table.Water, 255)
	default:
		put(buf, i, table.Forest, vis.ShowForest)
	}
}

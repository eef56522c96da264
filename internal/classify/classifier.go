package classify

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// EncodingLimit is the first reserved pixel code
const EncodingLimit = 201

// Class is the result of classifying one pixel
type Class int

const (
	ClassNone Class = iota
	ClassDeforestation
	ClassOldDeforestation
	ClassDegradation
	ClassForest
	ClassCloud
	ClassWater
	ClassReserved
)

func (c Class) String() string {
	switch c {
	case ClassDeforestation:
		return "deforestation"
	case ClassOldDeforestation:
		return "old_deforestation"
	case ClassDegradation:
		return "degradation"
	case ClassForest:
		return "forest"
	case ClassCloud:
		return "cloud"
	case ClassWater:
		return "water"
	case ClassReserved:
		return "reserved"
	default:
		return "none"
	}
}

// Masks holds auxiliary RGBA rasters by name, each the same size as the
// primary buffer. Only channel 0 is read.
type Masks map[string][]byte

// Auxiliary raster names used by the time-series overlay
const (
	RasterGV          = "gv"
	RasterShade       = "shade_median"
	RasterSoil        = "soil"
	RasterCloud       = "cloud"
	RasterCloudRegion = "cloud_region"
	RasterTemperature = "temperature"
)

// Strategy recolors an RGBA buffer in place
type Strategy interface {
	// Operation returns the operation this strategy renders
	Operation() models.Operation

	// Table returns the class colors, used by contour extraction to
	// recognise clicked classes
	Table() Table

	// Rasters lists the auxiliary rasters required besides the primary one
	Rasters() []string

	// Classify rewrites every non-transparent pixel of buf
	Classify(buf []byte, th Thresholds, vis LayerVisibility, masks Masks) error
}

// StrategyFactory creates a strategy instance
type StrategyFactory func() Strategy

var (
	registryMu       sync.RWMutex
	StrategyRegistry = make(map[models.Operation]StrategyFactory)
)

// RegisterStrategy registers a strategy factory for an operation
func RegisterStrategy(op models.Operation, factory StrategyFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	StrategyRegistry[op] = factory
}

// GetStrategy returns the strategy for an operation, or an error when none is
// registered
func GetStrategy(op models.Operation) (Strategy, error) {
	registryMu.RLock()
	factory, ok := StrategyRegistry[op]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no classification strategy for operation %q", op)
	}
	return factory(), nil
}

// Operations lists the registered operations in a stable order
func Operations() []models.Operation {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ops := make([]models.Operation, 0, len(StrategyRegistry))
	for op := range StrategyRegistry {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

func init() {
	RegisterStrategy(models.OperationSAD, func() Strategy { return NewSAD() })
	RegisterStrategy(models.OperationBaseline, func() Strategy { return NewBaseline() })
	RegisterStrategy(models.OperationTimeSeries, func() Strategy { return NewTimeSeries() })
}

// ClassOf reports which class of table the pixel color at offset i belongs
// to. Transparent pixels and unknown colors are ClassNone.
func ClassOf(buf []byte, i int, table Table) Class {
	if buf[i+3] == 0 {
		return ClassNone
	}
	c := Color{R: buf[i], G: buf[i+1], B: buf[i+2]}
	switch c {
	case table.Deforestation:
		return ClassDeforestation
	case table.Degradation:
		return ClassDegradation
	case table.Forest:
		return ClassForest
	case table.OldDeforestation:
		return ClassOldDeforestation
	case table.Cloud:
		return ClassCloud
	case table.Water:
		return ClassWater
	case white:
		return ClassReserved
	}
	return ClassNone
}

func checkBuffer(buf []byte) error {
	if len(buf)%4 != 0 {
		return fmt.Errorf("buffer length %d is not a multiple of 4", len(buf))
	}
	return nil
}

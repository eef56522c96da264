package stats

import (
	"math"
	"sort"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// NDFISummary is the five-number summary of NDFI change over a set of cells
type NDFISummary struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// ReviewSummary describes review progress over a set of cells
type ReviewSummary struct {
	Cells     int            `json:"cells"`
	Done      int            `json:"done"`
	Changed   int            `json:"changed"`
	Blocked   int            `json:"blocked"`
	Polygons  int            `json:"polygons"`
	Notes     int            `json:"notes"`
	DoneRatio float64        `json:"done_ratio"`
	ByZoom    map[int]int    `json:"by_zoom"`
	NDFI      NDFISummary    `json:"ndfi_change"`
	Latest    int64          `json:"latest_change,omitempty"` // Unix ms
	Reviewers map[string]int `json:"reviewers,omitempty"`
}

// Summarize aggregates review progress. Blocked cells are counted but left
// out of the done ratio and the NDFI summary.
func Summarize(cells []*models.Cell) ReviewSummary {
	s := ReviewSummary{ByZoom: make(map[int]int), Reviewers: make(map[string]int)}
	var ndfi []float64
	reviewable := 0

	for _, c := range cells {
		s.Cells++
		s.ByZoom[c.Z]++
		s.Polygons += c.PolygonCount
		s.Notes += c.NoteCount
		if c.Blocked {
			s.Blocked++
			continue
		}
		reviewable++
		ndfi = append(ndfi, c.NDFIChange)
		if c.Done {
			s.Done++
		}
		if c.HasChanges() {
			s.Changed++
			s.Reviewers[c.AddedBy]++
			if c.LatestChange > s.Latest {
				s.Latest = c.LatestChange
			}
		}
	}

	if reviewable > 0 {
		s.DoneRatio = float64(s.Done) / float64(reviewable)
	}
	s.NDFI = summarizeNDFI(ndfi)
	return s
}

func summarizeNDFI(values []float64) NDFISummary {
	if len(values) == 0 {
		return NDFISummary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return NDFISummary{
		Min:    sorted[0],
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
	}
}

// quantile interpolates linearly between the closest ranks of sorted
func quantile(sorted []float64, q float64) float64 {
	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

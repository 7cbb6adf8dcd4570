package skeleton

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"medialskel/internal/models"
	"medialskel/internal/spatial"
	"medialskel/pkg/surface"
)

// Metrics summarizes an extraction run. The values are informational and
// never influence the result.
type Metrics struct {
	RunID string

	BoundaryPoints    int
	BoundaryTriangles int
	Bounds            models.BoundingBox

	VoronoiVertices int
	InsideVertices  int
	Ridges          int
	Pruned          PruneStats

	OrphansRemoved int
	Components     ComponentStats
	Cluster        ClusterStats

	OutputPoints int
	OutputCells  int

	// SurfaceArea is the total area of the skeleton polygons
	SurfaceArea float64
	// MeanThickness and MedianThickness are area weighted over the Radius
	// cell values
	MeanThickness   float64
	MedianThickness float64
	// MaxBoundaryDistance is the largest distance from a skeleton point to
	// the nearest boundary vertex
	MaxBoundaryDistance float64

	Duration time.Duration
}

// thickness returns the skeleton area and the area weighted mean and median
// of the Radius cell array.
func thickness(pd *models.PolyData) (area, mean, median float64) {
	radius := pd.CellData.Get(models.RadiusArray)
	if radius == nil {
		return 0, 0, 0
	}

	type sample struct{ r, w float64 }
	var samples []sample
	for c, poly := range pd.Polys {
		if len(poly) < 3 {
			continue
		}
		if a := r3.Norm(areaVector(pd.Points, poly)); a > 0 {
			samples = append(samples, sample{r: radius.Values[c], w: a})
		}
	}
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].r < samples[j].r })

	rs := lo.Map(samples, func(s sample, _ int) float64 { return s.r })
	ws := lo.Map(samples, func(s sample, _ int) float64 { return s.w })
	return lo.Sum(ws), stat.Mean(rs, ws), stat.Quantile(0.5, stat.Empirical, rs, ws)
}

// maxBoundaryDistance returns the largest distance from a point of pd to
// the nearest vertex of the boundary mesh.
func maxBoundaryDistance(pd *models.PolyData, mesh *surface.Mesh) float64 {
	index := spatial.NewIndex(mesh.Points())
	worst := 0.0
	for _, p := range pd.Points {
		if _, d := index.Nearest(p); !math.IsInf(d, 1) {
			worst = math.Max(worst, d)
		}
	}
	return worst
}

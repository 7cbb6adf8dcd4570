package skeleton

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
)

// singularCutoff drops singular values of a bin quadric below this fraction
// of the largest one.
const singularCutoff = 1e-3

// ClusterStats describes a clustering run.
type ClusterStats struct {
	Divisions [3]int
	Points    int
	Cells     int
}

// quadric accumulates the squared distance to a set of planes:
// E(x) = x'Ax + 2b'x + c.
type quadric struct {
	a     [3][3]float64
	b     [3]float64
	sum   r3.Vec
	count int
}

func (q *quadric) addPlane(n r3.Vec, d, weight float64) {
	nv := [3]float64{n.X, n.Y, n.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			q.a[i][j] += weight * nv[i] * nv[j]
		}
		q.b[i] += weight * d * nv[i]
	}
}

// minimize returns the point of least error. Directions the planes do not
// constrain are resolved towards the mean of the bin's points.
func (q *quadric) minimize() r3.Vec {
	mean := r3.Scale(1/float64(q.count), q.sum)
	a := mat.NewSymDense(3, []float64{
		q.a[0][0], q.a[0][1], q.a[0][2],
		q.a[1][0], q.a[1][1], q.a[1][2],
		q.a[2][0], q.a[2][1], q.a[2][2],
	})
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return mean
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] <= 0 {
		return mean
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Residual gradient at the mean: A*mean + b
	m := [3]float64{mean.X, mean.Y, mean.Z}
	var g [3]float64
	for i := 0; i < 3; i++ {
		g[i] = q.b[i]
		for j := 0; j < 3; j++ {
			g[i] += q.a[i][j] * m[j]
		}
	}

	// x = mean - pinv(A) * g
	var step [3]float64
	for k, s := range values {
		if s < singularCutoff*values[0] {
			continue
		}
		proj := 0.0
		for i := 0; i < 3; i++ {
			proj += u.At(i, k) * g[i]
		}
		for i := 0; i < 3; i++ {
			step[i] += v.At(i, k) * proj / s
		}
	}
	return r3.Vec{X: m[0] - step[0], Y: m[1] - step[1], Z: m[2] - step[2]}
}

// Cluster simplifies pd on a regular grid whose longest axis has n bins.
// Every occupied bin collapses to the point minimizing the quadric error of
// the triangles touching it. Polygons are fan triangulated and re-indexed to
// bins; triangles that collapse or repeat are dropped. Each output cell takes
// the cell values of the first input cell that produced it and point values
// are derived again from the cells. n <= 0 returns pd unchanged.
func Cluster(pd *models.PolyData, n int) (*models.PolyData, ClusterStats) {
	if n <= 0 || len(pd.Points) == 0 {
		return pd, ClusterStats{Points: len(pd.Points), Cells: len(pd.Polys)}
	}
	box := pd.Bounds()
	binSize := box.MaxLength() / float64(n)

	var stats ClusterStats
	var size [3]float64
	for axis := 0; axis < 3; axis++ {
		div := 1
		if binSize > 0 {
			div = max(1, int(math.Ceil(box.Length(axis)/binSize)))
		}
		stats.Divisions[axis] = div
		size[axis] = box.Length(axis) / float64(div)
	}

	binOf := func(p r3.Vec) int {
		c := [3]float64{p.X - box.Min.X, p.Y - box.Min.Y, p.Z - box.Min.Z}
		var idx [3]int
		for axis := 0; axis < 3; axis++ {
			if size[axis] > 0 {
				idx[axis] = min(stats.Divisions[axis]-1, max(0, int(c[axis]/size[axis])))
			}
		}
		return (idx[2]*stats.Divisions[1]+idx[1])*stats.Divisions[0] + idx[0]
	}

	// Bin every point used by a cell; output points are numbered in order of
	// first use
	binID := make(map[int]int)
	pointBin := make([]int, len(pd.Points))
	var quadrics []*quadric
	for _, poly := range pd.Polys {
		for _, id := range poly {
			b := binOf(pd.Points[id])
			slot, ok := binID[b]
			if !ok {
				slot = len(quadrics)
				binID[b] = slot
				quadrics = append(quadrics, &quadric{})
			}
			pointBin[id] = slot
		}
	}
	seen := make([]bool, len(pd.Points))
	for _, poly := range pd.Polys {
		for _, id := range poly {
			if !seen[id] {
				seen[id] = true
				q := quadrics[pointBin[id]]
				q.sum = r3.Add(q.sum, pd.Points[id])
				q.count++
			}
		}
	}

	// Plane quadrics of the fan triangles, weighted by area
	for _, poly := range pd.Polys {
		for k := 1; k+1 < len(poly); k++ {
			a, b, c := pd.Points[poly[0]], pd.Points[poly[k]], pd.Points[poly[k+1]]
			cross := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
			area := 0.5 * r3.Norm(cross)
			if area == 0 {
				continue
			}
			normal := r3.Scale(1/(2*area), cross)
			d := -r3.Dot(normal, a)
			for _, id := range [3]int{poly[0], poly[k], poly[k+1]} {
				quadrics[pointBin[id]].addPlane(normal, d, area)
			}
		}
	}

	out := &models.PolyData{Points: make([]r3.Vec, len(quadrics))}
	for i, q := range quadrics {
		out.Points[i] = q.minimize()
	}

	// Re-index cells to bins
	var source []int
	seenCell := make(map[string]bool)
	emit := func(c int, cell []int) {
		key := cellKey(cell)
		if seenCell[key] {
			return
		}
		seenCell[key] = true
		out.Polys = append(out.Polys, cell)
		source = append(source, c)
	}
	for c, poly := range pd.Polys {
		switch {
		case len(poly) >= 3:
			for k := 1; k+1 < len(poly); k++ {
				a, b, t := pointBin[poly[0]], pointBin[poly[k]], pointBin[poly[k+1]]
				if a == b || b == t || a == t {
					continue
				}
				emit(c, []int{a, b, t})
			}
		case len(poly) == 2:
			if a, b := pointBin[poly[0]], pointBin[poly[1]]; a != b {
				emit(c, []int{a, b})
			} else {
				emit(c, []int{a})
			}
		case len(poly) == 1:
			emit(c, []int{pointBin[poly[0]]})
		}
	}
	out.CellData = pd.CellData.Select(source)

	out, _ = RemoveOrphans(out)
	out = CellToPoint(out)
	stats.Points = len(out.Points)
	stats.Cells = len(out.Polys)
	return out, stats
}

// cellKey identifies a cell independently of its starting vertex and winding.
func cellKey(cell []int) string {
	sorted := append([]int(nil), cell...)
	sort.Ints(sorted)
	return fmt.Sprint(sorted)
}

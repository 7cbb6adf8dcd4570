package skeleton

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
)

// RemoveOrphans drops the points no cell references and renumbers the rest
// in their original order. It returns the cleaned mesh and the number of
// points removed. Point arrays follow their points; cell arrays are copied.
func RemoveOrphans(pd *models.PolyData) (*models.PolyData, int) {
	used := make([]bool, len(pd.Points))
	for _, poly := range pd.Polys {
		for _, id := range poly {
			used[id] = true
		}
	}

	newID := make([]int, len(pd.Points))
	var kept []int
	for i, u := range used {
		newID[i] = -1
		if u {
			newID[i] = len(kept)
			kept = append(kept, i)
		}
	}

	out := &models.PolyData{
		Points:    make([]r3.Vec, len(kept)),
		Polys:     make([][]int, len(pd.Polys)),
		PointData: pd.PointData.Select(kept),
		CellData:  pd.CellData.Select(lo.Range(len(pd.Polys))),
	}
	for i, old := range kept {
		out.Points[i] = pd.Points[old]
	}
	for c, poly := range pd.Polys {
		out.Polys[c] = lo.Map(poly, func(id int, _ int) int { return newID[id] })
	}
	return out, len(pd.Points) - len(kept)
}

// Component is a set of cells connected through shared points.
type Component struct {
	Cells    []int
	minPoint int
}

// Components groups the cells of pd by connectivity, largest first. Ties are
// broken by the lowest point index in the component.
func Components(pd *models.PolyData) []Component {
	g := simple.NewUndirectedGraph()
	for _, poly := range pd.Polys {
		for _, id := range poly {
			if g.Node(int64(id)) == nil {
				g.AddNode(simple.Node(id))
			}
		}
	}
	for _, poly := range pd.Polys {
		for k, id := range poly {
			next := poly[(k+1)%len(poly)]
			if next != id && !g.HasEdgeBetween(int64(id), int64(next)) {
				g.SetEdge(g.NewEdge(simple.Node(id), simple.Node(next)))
			}
		}
	}

	label := make(map[int64]int)
	groups := topo.ConnectedComponents(g)
	comps := make([]Component, len(groups))
	for i, nodes := range groups {
		ids := lo.Map(nodes, func(n graph.Node, _ int) int64 { return n.ID() })
		for _, id := range ids {
			label[id] = i
		}
		comps[i].minPoint = int(lo.Min(ids))
	}
	for c, poly := range pd.Polys {
		if len(poly) == 0 {
			continue
		}
		i := label[int64(poly[0])]
		comps[i].Cells = append(comps[i].Cells, c)
	}

	sort.SliceStable(comps, func(i, j int) bool {
		if len(comps[i].Cells) != len(comps[j].Cells) {
			return len(comps[i].Cells) > len(comps[j].Cells)
		}
		return comps[i].minPoint < comps[j].minPoint
	})
	return comps
}

// ComponentStats reports what KeepComponents removed.
type ComponentStats struct {
	Found         int
	Kept          int
	RemovedCells  int
	RemovedPoints int
}

// KeepComponents keeps the k largest connected components, measured in
// cells, and removes the points left unused. k == 0 returns pd unchanged.
// For k > 1 the kept components are the k largest in the order of
// Components, not the first k found walking the points, so a small component
// holding the lowest point index is dropped ahead of larger ones.
func KeepComponents(pd *models.PolyData, k int) (*models.PolyData, ComponentStats) {
	if k <= 0 {
		return pd, ComponentStats{}
	}
	comps := Components(pd)
	stats := ComponentStats{Found: len(comps), Kept: min(k, len(comps))}

	var cells []int
	for _, c := range comps[:stats.Kept] {
		cells = append(cells, c.Cells...)
	}
	sort.Ints(cells)

	selected := &models.PolyData{
		Points:    pd.Points,
		Polys:     lo.Map(cells, func(c int, _ int) []int { return append([]int(nil), pd.Polys[c]...) }),
		PointData: pd.PointData,
		CellData:  pd.CellData.Select(cells),
	}
	out, removed := RemoveOrphans(selected)
	stats.RemovedCells = len(pd.Polys) - len(cells)
	stats.RemovedPoints = removed
	return out, stats
}

// CellToPoint gives every point the average of its incident cells' values
// for each cell array. Points without cells get zeros. Cell arrays are kept.
func CellToPoint(pd *models.PolyData) *models.PolyData {
	out := pd.Clone()
	counts := make([]int, len(pd.Points))
	for _, poly := range pd.Polys {
		for _, id := range lo.Uniq(poly) {
			counts[id]++
		}
	}

	for _, cells := range pd.CellData {
		pts := &models.DataArray{
			Name:       cells.Name,
			Components: cells.Components,
			Values:     make([]float64, len(pd.Points)*cells.Components),
		}
		for c, poly := range pd.Polys {
			tuple := cells.Tuple(c)
			for _, id := range lo.Uniq(poly) {
				for k, v := range tuple {
					pts.Values[id*cells.Components+k] += v
				}
			}
		}
		for id, n := range counts {
			if n == 0 {
				continue
			}
			for k := 0; k < cells.Components; k++ {
				pts.Values[id*cells.Components+k] /= float64(n)
			}
		}
		out.PointData.Set(pts)
	}
	return out
}

package skeleton

import (
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
)

// areaVector returns the polygon normal scaled by its area (Newell's method).
func areaVector(points []r3.Vec, poly []int) r3.Vec {
	var n r3.Vec
	for k, id := range poly {
		next := poly[(k+1)%len(poly)]
		n = r3.Add(n, r3.Cross(points[id], points[next]))
	}
	return r3.Scale(0.5, n)
}

// OrientNormals makes the winding of polygons consistent across shared edges,
// flips every edge-connected patch so the normal at its point of largest X
// faces +X, and stores area-weighted unit point normals in the Normals array.
// Cells with fewer than three points are left as they are and get no normal.
func OrientNormals(pd *models.PolyData) *models.PolyData {
	out := pd.Clone()

	type edge struct{ a, b int }
	edgeCells := make(map[edge][]int)
	for c, poly := range out.Polys {
		if len(poly) < 3 {
			continue
		}
		for k, a := range poly {
			b := poly[(k+1)%len(poly)]
			if a == b {
				continue
			}
			key := edge{min(a, b), max(a, b)}
			edgeCells[key] = append(edgeCells[key], c)
		}
	}

	flipped := make([]bool, len(out.Polys))
	visited := make([]bool, len(out.Polys))

	// traverses reports whether cell c, with its current flip, runs from a to b
	traverses := func(c, a, b int) bool {
		poly := out.Polys[c]
		for k, id := range poly {
			next := poly[(k+1)%len(poly)]
			if flipped[c] {
				id, next = next, id
			}
			if id == a && next == b {
				return true
			}
		}
		return false
	}

	for seed := range out.Polys {
		if visited[seed] || len(out.Polys[seed]) < 3 {
			continue
		}
		visited[seed] = true
		patch := []int{seed}
		for k := 0; k < len(patch); k++ {
			c := patch[k]
			poly := out.Polys[c]
			for i, a := range poly {
				b := poly[(i+1)%len(poly)]
				if a == b {
					continue
				}
				if flipped[c] {
					a, b = b, a
				}
				for _, nb := range edgeCells[edge{min(a, b), max(a, b)}] {
					if visited[nb] {
						continue
					}
					visited[nb] = true
					// A consistent neighbour runs the shared edge the other way
					if traverses(nb, a, b) {
						flipped[nb] = !flipped[nb]
					}
					patch = append(patch, nb)
				}
			}
		}
		orientPatch(out, patch, flipped)
	}

	for c, f := range flipped {
		if f {
			out.Polys[c] = lo.Reverse(out.Polys[c])
		}
	}

	normals := &models.DataArray{
		Name:       models.NormalsArray,
		Components: 3,
		Values:     make([]float64, 3*len(out.Points)),
	}
	sums := make([]r3.Vec, len(out.Points))
	for _, poly := range out.Polys {
		if len(poly) < 3 {
			continue
		}
		n := areaVector(out.Points, poly)
		for _, id := range lo.Uniq(poly) {
			sums[id] = r3.Add(sums[id], n)
		}
	}
	for i, s := range sums {
		if norm := r3.Norm(s); norm > 0 {
			s = r3.Scale(1/norm, s)
			normals.Values[3*i], normals.Values[3*i+1], normals.Values[3*i+2] = s.X, s.Y, s.Z
		}
	}
	out.PointData.Set(normals)
	return out
}

// orientPatch flips a consistently wound patch when the summed normal at its
// point of largest X points towards -X.
func orientPatch(pd *models.PolyData, patch []int, flipped []bool) {
	extreme := -1
	for _, c := range patch {
		for _, id := range pd.Polys[c] {
			if extreme < 0 || pd.Points[id].X > pd.Points[extreme].X ||
				(pd.Points[id].X == pd.Points[extreme].X && id < extreme) {
				extreme = id
			}
		}
	}

	var n r3.Vec
	for _, c := range patch {
		if !lo.Contains(pd.Polys[c], extreme) {
			continue
		}
		v := areaVector(pd.Points, pd.Polys[c])
		if flipped[c] {
			v = r3.Scale(-1, v)
		}
		n = r3.Add(n, v)
	}
	if n.X < 0 {
		for _, c := range patch {
			flipped[c] = !flipped[c]
		}
	}
}

// Package surface prepares the boundary mesh the skeleton is computed from:
// polygons are triangulated, coincident vertices are welded and vertex to
// triangle links are built. It also answers enclosed-point queries.
package surface

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
	"medialskel/internal/spatial"
)

// DefaultWeldTolerance is the distance below which vertices are merged,
// in model units.
const DefaultWeldTolerance = 1e-4

// Mesh is a welded triangle surface. It is read-only after construction.
type Mesh struct {
	points    []r3.Vec
	triangles [][3]int
	links     [][]int
	bounds    models.BoundingBox
}

// Preprocess triangulates raw, merges vertices closer than tolerance, drops
// triangles that collapse and removes points no triangle uses.
func Preprocess(raw *models.PolyData, tolerance float64) (*Mesh, error) {
	if raw == nil || len(raw.Points) == 0 {
		return nil, fmt.Errorf("input mesh has no points")
	}
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input mesh: %w", err)
	}

	// Fan triangulation of every polygon
	var triangles [][3]int
	for _, poly := range raw.Polys {
		for k := 1; k+1 < len(poly); k++ {
			triangles = append(triangles, [3]int{poly[0], poly[k], poly[k+1]})
		}
	}
	if len(triangles) == 0 {
		return nil, fmt.Errorf("input mesh has no polygons to triangulate")
	}

	mapping, welded := spatial.Merge(raw.Points, tolerance)

	// Drop collapsed and repeated triangles
	seen := make(map[[3]int]bool, len(triangles))
	kept := triangles[:0]
	for _, tri := range triangles {
		a, b, c := mapping[tri[0]], mapping[tri[1]], mapping[tri[2]]
		if a == b || b == c || a == c {
			continue
		}
		key := sortedTriple(a, b, c)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, [3]int{a, b, c})
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no triangles left after merging points within %g", tolerance)
	}

	// Remove points that are no longer referenced
	used := make([]int, len(welded))
	for i := range used {
		used[i] = -1
	}
	var points []r3.Vec
	for i, tri := range kept {
		for k, v := range tri {
			if used[v] < 0 {
				used[v] = len(points)
				points = append(points, welded[v])
			}
			kept[i][k] = used[v]
		}
	}

	return NewMesh(points, kept)
}

// NewMesh wraps an already clean triangle list.
func NewMesh(points []r3.Vec, triangles [][3]int) (*Mesh, error) {
	m := &Mesh{
		points:    points,
		triangles: triangles,
		links:     make([][]int, len(points)),
		bounds:    models.BoundsOf(points),
	}
	for t, tri := range triangles {
		for _, v := range tri {
			if v < 0 || v >= len(points) {
				return nil, fmt.Errorf("triangle %d references point %d, mesh has %d points", t, v, len(points))
			}
			m.links[v] = append(m.links[v], t)
		}
	}
	return m, nil
}

func sortedTriple(a, b, c int) [3]int {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return [3]int{a, b, c}
}

// NumberOfPoints returns the number of vertices.
func (m *Mesh) NumberOfPoints() int { return len(m.points) }

// NumberOfTriangles returns the number of triangles.
func (m *Mesh) NumberOfTriangles() int { return len(m.triangles) }

// Point returns vertex i.
func (m *Mesh) Point(i int) r3.Vec { return m.points[i] }

// Points returns the vertex positions. The slice must not be modified.
func (m *Mesh) Points() []r3.Vec { return m.points }

// Triangle returns the vertex indices of triangle t.
func (m *Mesh) Triangle(t int) [3]int { return m.triangles[t] }

// CellsOf returns the triangles incident to vertex v.
func (m *Mesh) CellsOf(v int) []int { return m.links[v] }

// Bounds returns the axis-aligned bounding box.
func (m *Mesh) Bounds() models.BoundingBox { return m.bounds }

// Area returns the total surface area.
func (m *Mesh) Area() float64 {
	area := 0.0
	for _, tri := range m.triangles {
		area += TriangleArea(m.points[tri[0]], m.points[tri[1]], m.points[tri[2]])
	}
	return area
}

// TriangleArea returns the area of triangle abc.
func TriangleArea(a, b, c r3.Vec) float64 {
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// PolyData converts the mesh back to a polygon mesh.
func (m *Mesh) PolyData() *models.PolyData {
	pd := &models.PolyData{
		Points: append([]r3.Vec(nil), m.points...),
		Polys:  make([][]int, len(m.triangles)),
	}
	for i, tri := range m.triangles {
		pd.Polys[i] = []int{tri[0], tri[1], tri[2]}
	}
	return pd
}

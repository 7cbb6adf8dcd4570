package surface

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// rayTilt tilts each ray slightly off its axis so that rays through mesh
// vertices and edges of axis-aligned meshes stay rare.
const rayTilt = 1e-5

// EnclosedPoints decides whether points lie inside a closed surface by casting
// rays along the three (slightly tilted) coordinate axes and taking the
// majority of the crossing parities. Triangles are binned in a 2-D grid per
// ray axis so each ray only tests nearby triangles.
//
// An EnclosedPoints keeps scratch state between queries and must not be used
// from several goroutines at once.
type EnclosedPoints struct {
	mesh      *Mesh
	tolerance float64
	grids     [3]*rayGrid
	stamp     []int
	query     int
}

// NewEnclosedPoints prepares the surface for inside queries. tolerance is
// relative to the bounding box diagonal: a point closer than that to the
// surface along a ray counts as lying on it, and points on the surface are
// reported inside.
func NewEnclosedPoints(m *Mesh, tolerance float64) *EnclosedPoints {
	e := &EnclosedPoints{
		mesh:      m,
		tolerance: tolerance * m.bounds.Diagonal(),
		stamp:     make([]int, len(m.triangles)),
	}
	for axis := 0; axis < 3; axis++ {
		e.grids[axis] = newRayGrid(m, axis)
	}
	return e
}

// IsInside reports whether p is enclosed by the surface.
func (e *EnclosedPoints) IsInside(p r3.Vec) bool {
	if !e.mesh.bounds.Contains(p) {
		return false
	}
	votes := 0
	for axis := 0; axis < 3; axis++ {
		crossings, onSurface := e.cast(e.grids[axis], p)
		if onSurface {
			return true
		}
		if crossings%2 == 1 {
			votes++
		}
	}
	return votes >= 2
}

// cast counts the triangles hit by the ray of g starting at p.
func (e *EnclosedPoints) cast(g *rayGrid, p r3.Vec) (crossings int, onSurface bool) {
	e.query++
	length := component(e.mesh.bounds.Max, g.axis) - component(p, g.axis) + 1
	end := r3.Add(p, r3.Scale(length, g.dir))

	u0, u1 := math.Min(component(p, g.u), component(end, g.u)), math.Max(component(p, g.u), component(end, g.u))
	v0, v1 := math.Min(component(p, g.v), component(end, g.v)), math.Max(component(p, g.v), component(end, g.v))
	iu0, iu1 := g.cellIndex(0, u0), g.cellIndex(0, u1)
	iv0, iv1 := g.cellIndex(1, v0), g.cellIndex(1, v1)

	for iu := iu0; iu <= iu1; iu++ {
		for iv := iv0; iv <= iv1; iv++ {
			for _, t := range g.cells[iu*g.n[1]+iv] {
				if e.stamp[t] == e.query {
					continue
				}
				e.stamp[t] = e.query
				tri := e.mesh.triangles[t]
				dist, hit := intersect(p, g.dir, e.mesh.points[tri[0]], e.mesh.points[tri[1]], e.mesh.points[tri[2]])
				if !hit {
					continue
				}
				if math.Abs(dist) <= e.tolerance {
					return 0, true
				}
				if dist > 0 {
					crossings++
				}
			}
		}
	}
	return crossings, false
}

// intersect is the Möller–Trumbore ray/triangle test. It returns the signed
// ray parameter of the hit; rays parallel to the triangle never hit.
func intersect(origin, dir, a, b, c r3.Vec) (float64, bool) {
	const eps = 1e-14
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	pv := r3.Cross(dir, e2)
	det := r3.Dot(e1, pv)
	if math.Abs(det) < eps*r3.Norm(e1)*r3.Norm(e2) {
		return 0, false
	}
	inv := 1 / det
	tv := r3.Sub(origin, a)
	u := r3.Dot(tv, pv) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	qv := r3.Cross(tv, e1)
	v := r3.Dot(dir, qv) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	return r3.Dot(e2, qv) * inv, true
}

// rayGrid bins triangles by their extent in the plane orthogonal to a ray axis.
type rayGrid struct {
	axis, u, v int
	dir        r3.Vec
	min        [2]float64
	size       [2]float64
	n          [2]int
	cells      [][]int
}

func newRayGrid(m *Mesh, axis int) *rayGrid {
	g := &rayGrid{axis: axis, u: (axis + 1) % 3, v: (axis + 2) % 3}
	d := [3]float64{}
	d[axis] = 1
	d[g.u] = rayTilt
	d[g.v] = rayTilt * math.Sqrt2
	g.dir = r3.Unit(r3.Vec{X: d[0], Y: d[1], Z: d[2]})

	res := int(math.Ceil(math.Sqrt(float64(len(m.triangles)))))
	res = max(1, min(res, 512))
	for k, ax := range [2]int{g.u, g.v} {
		g.min[k] = component(m.bounds.Min, ax)
		extent := m.bounds.Length(ax)
		g.n[k] = res
		g.size[k] = extent / float64(res)
		if g.size[k] <= 0 {
			g.n[k], g.size[k] = 1, 1
		}
	}

	g.cells = make([][]int, g.n[0]*g.n[1])
	for t, tri := range m.triangles {
		lo := [2]float64{math.Inf(1), math.Inf(1)}
		hi := [2]float64{math.Inf(-1), math.Inf(-1)}
		for _, vi := range tri {
			p := m.points[vi]
			for k, ax := range [2]int{g.u, g.v} {
				lo[k] = math.Min(lo[k], component(p, ax))
				hi[k] = math.Max(hi[k], component(p, ax))
			}
		}
		for iu := g.cellIndex(0, lo[0]); iu <= g.cellIndex(0, hi[0]); iu++ {
			for iv := g.cellIndex(1, lo[1]); iv <= g.cellIndex(1, hi[1]); iv++ {
				g.cells[iu*g.n[1]+iv] = append(g.cells[iu*g.n[1]+iv], t)
			}
		}
	}
	return g
}

// cellIndex clamps a coordinate along grid dimension k to a cell index.
func (g *rayGrid) cellIndex(k int, x float64) int {
	i := int(math.Floor((x - g.min[k]) / g.size[k]))
	return max(0, min(i, g.n[k]-1))
}

func component(p r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

package voronoi

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
	"medialskel/internal/spatial"
)

// Defaults for DelaunaySolver
const (
	DefaultJoggle         = 1e-9
	DefaultMergeTolerance = 1e-6
	DefaultSeed           = 1
)

// superScale sizes the enclosing tetrahedron relative to the normalized input.
const superScale = 1e3

// flatRatio is the volume to cubed longest edge ratio below which a
// tetrahedron counts as flat. A regular tetrahedron has about 0.118.
const flatRatio = 1e-6

// cosphericalTolerance is the relative radius mismatch allowed when a flat
// tetrahedron is matched to the circumsphere of a neighbour.
const cosphericalTolerance = 1e-6

// DelaunaySolver computes the Voronoi diagram in process as the dual of a
// Bowyer-Watson Delaunay tetrahedralization.
//
// Input points are normalized and joggled by a seeded random offset so that
// cospherical inputs such as a cube produce a valid triangulation; the
// circumcentres of tetrahedra that then nearly coincide are merged. Flat
// tetrahedra left by the joggle, such as one spanning a cube face, take the
// vertex of a neighbour whose circumsphere passes through their corners.
// Ridges are emitted for every Delaunay edge, sorted by generator pair, with
// vertices in cyclic order around the edge. Tetrahedra that touch the enclosing
// tetrahedron stand for the point at infinity.
type DelaunaySolver struct {
	// Joggle is the maximum perturbation relative to the half extent of the input
	Joggle float64
	// MergeTolerance is relative to the bounding box diagonal
	MergeTolerance float64
	Seed           int64
	Logger         *zap.Logger
}

// NewDelaunaySolver returns a solver with default settings.
func NewDelaunaySolver(logger *zap.Logger) *DelaunaySolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelaunaySolver{
		Joggle:         DefaultJoggle,
		MergeTolerance: DefaultMergeTolerance,
		Seed:           DefaultSeed,
		Logger:         logger,
	}
}

// tet is a tetrahedron of the triangulation with its circumsphere.
type tet struct {
	v      [4]int
	center r3.Vec
	r2     float64
	alive  bool
}

// tetrahedralization is the working state of one Bowyer-Watson run.
type tetrahedralization struct {
	pts   []r3.Vec
	tets  []tet
	faces map[[3]int][2]int

	// circumsphere solve workspace
	a   *mat.Dense
	b   *mat.VecDense
	x   *mat.VecDense
	rel [3]r3.Vec
}

// Solve implements Solver.
func (s *DelaunaySolver) Solve(ctx context.Context, points []r3.Vec) (*Diagram, error) {
	n := len(points)
	if n < 4 {
		return nil, fmt.Errorf("delaunay solver needs at least 4 points, got %d", n)
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	box := models.BoundsOf(points)
	center := box.Center()
	scale := box.MaxLength() / 2
	if scale <= 0 {
		return nil, fmt.Errorf("delaunay solver input has zero extent")
	}

	// Normalize into [-1,1]^3 and joggle
	rnd := rand.New(rand.NewSource(s.Seed))
	pts := make([]r3.Vec, n, n+4)
	for i, p := range points {
		q := r3.Scale(1/scale, r3.Sub(p, center))
		if s.Joggle > 0 {
			q.X += s.Joggle * (2*rnd.Float64() - 1)
			q.Y += s.Joggle * (2*rnd.Float64() - 1)
			q.Z += s.Joggle * (2*rnd.Float64() - 1)
		}
		pts[i] = q
	}
	pts = append(pts,
		r3.Vec{X: superScale, Y: superScale, Z: superScale},
		r3.Vec{X: superScale, Y: -superScale, Z: -superScale},
		r3.Vec{X: -superScale, Y: superScale, Z: -superScale},
		r3.Vec{X: -superScale, Y: -superScale, Z: superScale},
	)

	tz := &tetrahedralization{
		pts:   pts,
		faces: make(map[[3]int][2]int),
		a:     mat.NewDense(3, 3, nil),
		b:     mat.NewVecDense(3, nil),
		x:     mat.NewVecDense(3, nil),
	}
	tz.add([4]int{n, n + 1, n + 2, n + 3})

	for i := 0; i < n; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("delaunay solver interrupted: %w", err)
			}
		}
		if err := tz.insert(i); err != nil {
			return nil, err
		}
	}

	d := tz.diagram(n, center, scale, s.MergeTolerance*box.Diagonal())
	logger.Debug("delaunay solver finished",
		zap.Int("points", n),
		zap.Int("vertices", d.NumberOfFiniteVertices()),
		zap.Int("ridges", len(d.Ridges)))
	return d, nil
}

// add appends a tetrahedron and registers its faces.
func (tz *tetrahedralization) add(v [4]int) int {
	id := len(tz.tets)
	c, r2 := tz.circumsphere(v)
	tz.tets = append(tz.tets, tet{v: v, center: c, r2: r2, alive: true})
	for _, f := range tetFaces(v) {
		slots, ok := tz.faces[f]
		if !ok {
			slots = [2]int{-1, -1}
		}
		if slots[0] < 0 {
			slots[0] = id
		} else {
			slots[1] = id
		}
		tz.faces[f] = slots
	}
	return id
}

// remove kills a tetrahedron and unregisters its faces.
func (tz *tetrahedralization) remove(id int) {
	tz.tets[id].alive = false
	for _, f := range tetFaces(tz.tets[id].v) {
		slots := tz.faces[f]
		if slots[0] == id {
			slots[0] = -1
		} else if slots[1] == id {
			slots[1] = -1
		}
		if slots[0] < 0 && slots[1] < 0 {
			delete(tz.faces, f)
		} else {
			tz.faces[f] = slots
		}
	}
}

// neighbor returns the tetrahedron across face f of id, or -1.
func (tz *tetrahedralization) neighbor(id int, f [3]int) int {
	slots := tz.faces[f]
	if slots[0] == id {
		return slots[1]
	}
	return slots[0]
}

func (tz *tetrahedralization) inSphere(id int, p r3.Vec) bool {
	t := &tz.tets[id]
	if math.IsInf(t.r2, 1) {
		return true
	}
	return r3.Norm2(r3.Sub(p, t.center)) < t.r2
}

// insert adds point i, replacing the tetrahedra whose circumsphere contains it.
func (tz *tetrahedralization) insert(i int) error {
	p := tz.pts[i]

	// Recently created tetrahedra are the likeliest to contain the next point
	seed := -1
	for id := len(tz.tets) - 1; id >= 0; id-- {
		if tz.tets[id].alive && !math.IsInf(tz.tets[id].r2, 1) && tz.inSphere(id, p) {
			seed = id
			break
		}
	}
	if seed < 0 {
		return fmt.Errorf("delaunay solver: point %d is not inside the triangulation", i)
	}

	// Grow the cavity across faces
	inCavity := map[int]bool{seed: true}
	cavity := []int{seed}
	for k := 0; k < len(cavity); k++ {
		for _, f := range tetFaces(tz.tets[cavity[k]].v) {
			nb := tz.neighbor(cavity[k], f)
			if nb < 0 || inCavity[nb] {
				continue
			}
			if tz.inSphere(nb, p) {
				inCavity[nb] = true
				cavity = append(cavity, nb)
			}
		}
	}

	// Faces on the cavity boundary
	var boundary [][3]int
	for _, id := range cavity {
		for _, f := range tetFaces(tz.tets[id].v) {
			nb := tz.neighbor(id, f)
			if nb < 0 || !inCavity[nb] {
				boundary = append(boundary, f)
			}
		}
	}

	for _, id := range cavity {
		tz.remove(id)
	}
	for _, f := range boundary {
		tz.add([4]int{f[0], f[1], f[2], i})
	}
	return nil
}

// circumsphere returns the centre and squared radius of the sphere through
// the four vertices. Degenerate tetrahedra get an infinite radius.
func (tz *tetrahedralization) circumsphere(v [4]int) (r3.Vec, float64) {
	origin := tz.pts[v[0]]
	for k := 1; k < 4; k++ {
		tz.rel[k-1] = r3.Sub(tz.pts[v[k]], origin)
	}
	for k, r := range tz.rel {
		tz.a.Set(k, 0, r.X)
		tz.a.Set(k, 1, r.Y)
		tz.a.Set(k, 2, r.Z)
		tz.b.SetVec(k, 0.5*r3.Norm2(r))
	}
	if err := tz.x.SolveVec(tz.a, tz.b); err != nil {
		centroid := r3.Scale(0.25, r3.Add(r3.Add(tz.pts[v[0]], tz.pts[v[1]]), r3.Add(tz.pts[v[2]], tz.pts[v[3]])))
		return centroid, math.Inf(1)
	}
	off := r3.Vec{X: tz.x.AtVec(0), Y: tz.x.AtVec(1), Z: tz.x.AtVec(2)}
	return r3.Add(origin, off), r3.Norm2(off)
}

// diagram builds the Voronoi dual of the finished triangulation. Coordinates
// are mapped back to the input frame.
func (tz *tetrahedralization) diagram(n int, center r3.Vec, scale, mergeTol float64) *Diagram {
	infinite := make([]bool, len(tz.tets))
	rep := make([]int, len(tz.tets))
	for id, t := range tz.tets {
		rep[id] = -1
		if !t.alive {
			continue
		}
		if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n || t.v[3] >= n {
			infinite[id] = true
			continue
		}
		if !tz.isFlat(id) {
			rep[id] = id
		}
	}

	// A flat tetrahedron whose corners lie on the circumsphere of a resolved
	// neighbour belongs to the same Voronoi vertex
	for changed := true; changed; {
		changed = false
		for id, t := range tz.tets {
			if !t.alive || infinite[id] || rep[id] >= 0 {
				continue
			}
			for _, f := range tetFaces(t.v) {
				nb := tz.neighbor(id, f)
				if nb >= 0 && rep[nb] >= 0 && tz.onSphere(t.v, rep[nb]) {
					rep[id] = rep[nb]
					changed = true
					break
				}
			}
		}
	}
	for id, t := range tz.tets {
		if !t.alive || infinite[id] || rep[id] >= 0 {
			continue
		}
		if math.IsInf(t.r2, 1) {
			infinite[id] = true
		} else {
			rep[id] = id
		}
	}

	// Own vertices in creation order
	vertexOf := make([]int, len(tz.tets))
	var owners []int
	var centers []r3.Vec
	for id, t := range tz.tets {
		if t.alive && !infinite[id] && rep[id] == id {
			owners = append(owners, id)
			centers = append(centers, r3.Add(center, r3.Scale(scale, t.center)))
		}
	}
	mapping, merged := spatial.Merge(centers, mergeTol)
	for k, id := range owners {
		vertexOf[id] = mapping[k] + 1
	}
	for id, t := range tz.tets {
		switch {
		case !t.alive:
		case infinite[id]:
			vertexOf[id] = Infinity
		case rep[id] != id:
			vertexOf[id] = vertexOf[rep[id]]
		}
	}

	// Tetrahedra around every real edge
	around := make(map[[2]int][]int)
	for id, t := range tz.tets {
		if !t.alive {
			continue
		}
		for _, e := range tetEdges(t.v) {
			if e[1] < n {
				around[e] = append(around[e], id)
			}
		}
	}
	edges := make([][2]int, 0, len(around))
	for e := range around {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})

	ridges := make([]Ridge, 0, len(edges))
	for _, e := range edges {
		ring := tz.orderAround(e, around[e])
		var verts []int
		for _, id := range ring {
			v := vertexOf[id]
			if len(verts) > 0 && verts[len(verts)-1] == v {
				continue
			}
			verts = append(verts, v)
		}
		if len(verts) > 1 && verts[0] == verts[len(verts)-1] {
			verts = verts[:len(verts)-1]
		}
		ridges = append(ridges, Ridge{Generators: e, Vertices: verts})
	}

	return NewDiagram(merged, ridges)
}

// isFlat reports whether a tetrahedron is too thin for its circumcentre to be
// trusted: its volume is tiny against the cube of its longest edge, or the
// circumsphere could not be solved.
func (tz *tetrahedralization) isFlat(id int) bool {
	t := &tz.tets[id]
	if math.IsInf(t.r2, 1) {
		return true
	}
	p := tz.pts
	e1 := r3.Sub(p[t.v[1]], p[t.v[0]])
	e2 := r3.Sub(p[t.v[2]], p[t.v[0]])
	e3 := r3.Sub(p[t.v[3]], p[t.v[0]])
	volume := math.Abs(r3.Dot(e1, r3.Cross(e2, e3))) / 6

	longest := 0.0
	for _, e := range tetEdges(t.v) {
		longest = math.Max(longest, r3.Norm(r3.Sub(p[e[1]], p[e[0]])))
	}
	return volume <= flatRatio*longest*longest*longest
}

// onSphere reports whether the four vertices lie on the circumsphere of
// tetrahedron id.
func (tz *tetrahedralization) onSphere(v [4]int, id int) bool {
	t := &tz.tets[id]
	r := math.Sqrt(t.r2)
	for _, k := range v {
		if math.Abs(r3.Norm(r3.Sub(tz.pts[k], t.center))-r) > cosphericalTolerance*r {
			return false
		}
	}
	return true
}

// orderAround sorts the tetrahedra sharing edge e by the angle of their
// centroid about the edge axis.
func (tz *tetrahedralization) orderAround(e [2]int, ids []int) []int {
	a := tz.pts[e[0]]
	axis := r3.Unit(r3.Sub(tz.pts[e[1]], a))

	// Any direction not parallel to the axis
	ref := r3.Vec{X: 1}
	if math.Abs(axis.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	e1 := r3.Unit(r3.Cross(axis, ref))
	e2 := r3.Cross(axis, e1)

	angles := make(map[int]float64, len(ids))
	for _, id := range ids {
		v := tz.tets[id].v
		c := r3.Scale(0.25, r3.Add(r3.Add(tz.pts[v[0]], tz.pts[v[1]]), r3.Add(tz.pts[v[2]], tz.pts[v[3]])))
		d := r3.Sub(c, a)
		angles[id] = math.Atan2(r3.Dot(d, e2), r3.Dot(d, e1))
	}
	ring := append([]int(nil), ids...)
	sort.Slice(ring, func(i, j int) bool {
		if angles[ring[i]] != angles[ring[j]] {
			return angles[ring[i]] < angles[ring[j]]
		}
		return ring[i] < ring[j]
	})
	return ring
}

// tetFaces returns the four faces of a tetrahedron as sorted triples.
func tetFaces(v [4]int) [4][3]int {
	return [4][3]int{
		sortTriple(v[1], v[2], v[3]),
		sortTriple(v[0], v[2], v[3]),
		sortTriple(v[0], v[1], v[3]),
		sortTriple(v[0], v[1], v[2]),
	}
}

// tetEdges returns the six edges of a tetrahedron with the smaller index first.
func tetEdges(v [4]int) [6][2]int {
	var out [6][2]int
	k := 0
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			a, b := v[i], v[j]
			if a > b {
				a, b = b, a
			}
			out[k] = [2]int{a, b}
			k++
		}
	}
	return out
}

func sortTriple(a, b, c int) [3]int {
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

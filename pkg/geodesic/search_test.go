package geodesic

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/spatial/r3"
)

// gridMesh is a triangulated, gently curved n x n vertex grid
type gridMesh struct {
	n         int
	points    []r3.Vec
	triangles [][3]int
}

func newGridMesh(n int) *gridMesh {
	g := &gridMesh{n: n}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x, y := float64(i), float64(j)
			g.points = append(g.points, r3.Vec{X: x, Y: y, Z: 0.3 * math.Sin(x*0.7) * math.Cos(y*0.4)})
		}
	}
	for j := 0; j+1 < n; j++ {
		for i := 0; i+1 < n; i++ {
			a := j*n + i
			b, c, d := a+1, a+n, a+n+1
			g.triangles = append(g.triangles, [3]int{a, b, d}, [3]int{a, d, c})
		}
	}
	return g
}

func (g *gridMesh) NumberOfPoints() int    { return len(g.points) }
func (g *gridMesh) NumberOfTriangles() int { return len(g.triangles) }
func (g *gridMesh) Point(i int) r3.Vec     { return g.points[i] }
func (g *gridMesh) Triangle(t int) [3]int  { return g.triangles[t] }

// reference computes exact distances with gonum's Dijkstra
func reference(t *testing.T, topo *Topology, fn WeightFunc, source int) []float64 {
	t.Helper()
	wg := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for v := 0; v < topo.NumberOfVertices(); v++ {
		wg.AddNode(simple.Node(v))
	}
	for v := 0; v < topo.NumberOfVertices(); v++ {
		for _, u := range topo.Neighbors(v) {
			if u > v {
				w := fn(topo.points[v], topo.points[u])
				wg.SetWeightedEdge(wg.NewWeightedEdge(simple.Node(v), simple.Node(u), w))
			}
		}
	}
	shortest := path.DijkstraFrom(simple.Node(source), wg)
	out := make([]float64, topo.NumberOfVertices())
	for v := range out {
		out[v] = shortest.WeightTo(int64(v))
	}
	return out
}

// TestNewTopology checks degrees and neighbour ordering on the grid
func TestNewTopology(t *testing.T) {
	topo, err := NewTopology(newGridMesh(4))
	if err != nil {
		t.Fatalf("Failed to build topology: %v", err)
	}
	if topo.NumberOfVertices() != 16 {
		t.Errorf("Expected 16 vertices, got %d", topo.NumberOfVertices())
	}
	// 3*4 horizontal + 3*4 vertical + 9 diagonals
	if topo.NumberOfEdges() != 33 {
		t.Errorf("Expected 33 edges, got %d", topo.NumberOfEdges())
	}
	want := []int{0, 2, 5, 6}
	got := topo.Neighbors(1)
	if len(got) != len(want) {
		t.Fatalf("Expected neighbours %v of vertex 1, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected neighbours %v of vertex 1, got %v", want, got)
			break
		}
	}

	bad := newGridMesh(2)
	bad.triangles[0][2] = 9
	if _, err := NewTopology(bad); err == nil {
		t.Error("Expected an error for an out of range vertex")
	}
}

// TestUnboundedMatchesDijkstra compares both weightings with gonum's search
func TestUnboundedMatchesDijkstra(t *testing.T) {
	topo, err := NewTopology(newGridMesh(9))
	if err != nil {
		t.Fatalf("Failed to build topology: %v", err)
	}
	for _, mode := range []struct {
		name string
		fn   WeightFunc
	}{{"Euclidean", Euclidean}, {"Unit", Unit}} {
		t.Run(mode.name, func(t *testing.T) {
			g := topo.Weighted(mode.fn)
			st := NewSearchState(topo.NumberOfVertices())
			for _, source := range []int{0, 40, 77} {
				want := reference(t, topo, mode.fn, source)
				BoundedShortestPath(g, source, math.Inf(1), st)
				for v, w := range want {
					if math.Abs(st.Distance(v)-w) > 1e-9 {
						t.Errorf("Source %d vertex %d: expected %f, got %f", source, v, w, st.Distance(v))
					}
				}
			}
		})
	}
}

// TestBoundedSearch verifies exact distances inside the bound and the bound outside
func TestBoundedSearch(t *testing.T) {
	topo, err := NewTopology(newGridMesh(12))
	if err != nil {
		t.Fatalf("Failed to build topology: %v", err)
	}
	g := topo.Weighted(Euclidean)
	st := NewSearchState(topo.NumberOfVertices())

	source, bound := 0, 3.5
	want := reference(t, topo, Euclidean, source)
	BoundedShortestPath(g, source, bound, st)

	for v, w := range want {
		got := st.Distance(v)
		if w <= bound && math.Abs(got-w) > 1e-9 {
			t.Errorf("Vertex %d within bound: expected %f, got %f", v, w, got)
		}
		if w > bound && got != bound {
			t.Errorf("Vertex %d beyond bound: expected %f, got %f", v, bound, got)
		}
	}
	if st.Visited() >= topo.NumberOfVertices() {
		t.Errorf("Expected the bound to limit the search, visited %d of %d", st.Visited(), topo.NumberOfVertices())
	}
}

// TestUnitBoundIsExactBelowThreshold mirrors the edge count test of the pruner
func TestUnitBoundIsExactBelowThreshold(t *testing.T) {
	topo, err := NewTopology(newGridMesh(6))
	if err != nil {
		t.Fatalf("Failed to build topology: %v", err)
	}
	e := NewEngine(topo.Weighted(Unit))

	// Vertex 7 is a diagonal neighbour of vertex 0
	if d := e.ComputeDistances(0, 2).VertexDistance(7); d != 1 {
		t.Errorf("Expected 1 edge to the diagonal neighbour, got %f", d)
	}
	if d := e.ComputeDistances(0, 2).VertexDistance(2); d != 2 {
		t.Errorf("Expected 2 edges to vertex 2, got %f", d)
	}
	if d := e.ComputeDistances(0, 2).VertexDistance(35); d != 2 {
		t.Errorf("Expected the far corner to report the bound 2, got %f", d)
	}
}

// TestSearchStateReuse makes sure a reused state gives the same answers as a fresh one
func TestSearchStateReuse(t *testing.T) {
	topo, err := NewTopology(newGridMesh(8))
	if err != nil {
		t.Fatalf("Failed to build topology: %v", err)
	}
	g := topo.Weighted(Euclidean)
	reused := NewSearchState(topo.NumberOfVertices())

	BoundedShortestPath(g, 63, math.Inf(1), reused)
	BoundedShortestPath(g, 10, 2.5, reused)

	fresh := NewSearchState(topo.NumberOfVertices())
	BoundedShortestPath(g, 10, 2.5, fresh)

	for v := 0; v < topo.NumberOfVertices(); v++ {
		if reused.Distance(v) != fresh.Distance(v) {
			t.Errorf("Vertex %d: reused state gives %f, fresh state %f", v, reused.Distance(v), fresh.Distance(v))
		}
	}
}

// TestDisconnected reports the bound for unreachable vertices
func TestDisconnected(t *testing.T) {
	m := newGridMesh(3)
	// A second, separate triangle
	m.points = append(m.points, r3.Vec{X: 10}, r3.Vec{X: 11}, r3.Vec{X: 10, Y: 1})
	m.triangles = append(m.triangles, [3]int{9, 10, 11})

	topo, err := NewTopology(m)
	if err != nil {
		t.Fatalf("Failed to build topology: %v", err)
	}
	e := NewEngine(topo.Weighted(Euclidean))
	if d := e.ComputeDistances(0, 100).VertexDistance(10); d != 100 {
		t.Errorf("Expected unreachable vertex to report the bound, got %f", d)
	}
}

// BenchmarkBoundedShortestPath measures short bounded queries on a large grid
func BenchmarkBoundedShortestPath(b *testing.B) {
	topo, err := NewTopology(newGridMesh(200))
	if err != nil {
		b.Fatalf("Failed to build topology: %v", err)
	}
	g := topo.Weighted(Euclidean)
	st := NewSearchState(topo.NumberOfVertices())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BoundedShortestPath(g, (i*7919)%topo.NumberOfVertices(), 5, st)
	}
}

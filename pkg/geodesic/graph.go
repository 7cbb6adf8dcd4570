// Package geodesic measures distances along a triangle mesh. Edge distances
// are found with a Dijkstra search that stops once the frontier passes a
// caller supplied bound.
package geodesic

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// TriangleMesh is the mesh a Topology is built from.
type TriangleMesh interface {
	NumberOfPoints() int
	NumberOfTriangles() int
	Point(i int) r3.Vec
	Triangle(t int) [3]int
}

// Topology is the vertex adjacency of a triangle mesh in compressed sparse
// row form. Each undirected mesh edge is stored as two half-edges.
type Topology struct {
	points  []r3.Vec
	offsets []int
	targets []int
}

// NewTopology collects the edges of every triangle of m.
func NewTopology(m TriangleMesh) (*Topology, error) {
	n := m.NumberOfPoints()
	adj := make([][]int, n)
	for t := 0; t < m.NumberOfTriangles(); t++ {
		tri := m.Triangle(t)
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			if a < 0 || a >= n || b < 0 || b >= n {
				return nil, fmt.Errorf("triangle %d references a vertex outside [0,%d)", t, n)
			}
			if a == b {
				continue
			}
			adj[a] = append(adj[a], b)
			adj[b] = append(adj[b], a)
		}
	}

	topo := &Topology{
		points:  make([]r3.Vec, n),
		offsets: make([]int, n+1),
	}
	for v := 0; v < n; v++ {
		topo.points[v] = m.Point(v)
		nb := adj[v]
		sort.Ints(nb)
		prev := -1
		for _, u := range nb {
			if u != prev {
				topo.targets = append(topo.targets, u)
				prev = u
			}
		}
		topo.offsets[v+1] = len(topo.targets)
	}
	return topo, nil
}

// NumberOfVertices returns the vertex count.
func (t *Topology) NumberOfVertices() int { return len(t.points) }

// NumberOfEdges returns the number of undirected edges.
func (t *Topology) NumberOfEdges() int { return len(t.targets) / 2 }

// Neighbors returns the sorted neighbours of v. The slice must not be modified.
func (t *Topology) Neighbors(v int) []int {
	return t.targets[t.offsets[v]:t.offsets[v+1]]
}

// WeightFunc gives the length of the edge between two vertex positions.
type WeightFunc func(a, b r3.Vec) float64

// Euclidean weighs an edge by its length.
func Euclidean(a, b r3.Vec) float64 { return r3.Norm(r3.Sub(b, a)) }

// Unit weighs every edge as 1, so distances count edges.
func Unit(a, b r3.Vec) float64 { return 1 }

// Graph is a Topology with a weight per half-edge.
type Graph struct {
	topo    *Topology
	weights []float64
}

// Weighted evaluates fn on every half-edge.
func (t *Topology) Weighted(fn WeightFunc) *Graph {
	g := &Graph{topo: t, weights: make([]float64, len(t.targets))}
	for v := 0; v < len(t.points); v++ {
		for k := t.offsets[v]; k < t.offsets[v+1]; k++ {
			g.weights[k] = fn(t.points[v], t.points[t.targets[k]])
		}
	}
	return g
}

// Topology returns the adjacency g is built on.
func (g *Graph) Topology() *Topology { return g.topo }

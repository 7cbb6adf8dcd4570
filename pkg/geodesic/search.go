package geodesic

import (
	"container/heap"
	"math"
)

// SearchState holds the scratch data of one shortest path query. Only the
// entries touched by a query are reset before the next one, so a state can be
// reused for many sources on a large mesh. A state must not be shared by
// concurrent searches.
type SearchState struct {
	dist    []float64
	settled []bool
	touched []int
	queue   frontier
	bound   float64
}

// NewSearchState allocates a state for graphs with n vertices.
func NewSearchState(n int) *SearchState {
	st := &SearchState{
		dist:    make([]float64, n),
		settled: make([]bool, n),
	}
	for i := range st.dist {
		st.dist[i] = math.Inf(1)
	}
	return st
}

func (st *SearchState) reset(bound float64) {
	for _, v := range st.touched {
		st.dist[v] = math.Inf(1)
		st.settled[v] = false
	}
	st.touched = st.touched[:0]
	st.queue = st.queue[:0]
	st.bound = bound
}

// Distance returns the distance to v found by the last search. Vertices
// farther than the bound, or unreachable, report the bound.
func (st *SearchState) Distance(v int) float64 {
	if st.settled[v] {
		return st.dist[v]
	}
	return st.bound
}

// Visited returns how many vertices the last search reached.
func (st *SearchState) Visited() int { return len(st.touched) }

// BoundedShortestPath runs Dijkstra's algorithm on g from source and stops
// as soon as the closest unsettled vertex is farther than bound. Results are
// left in st.
func BoundedShortestPath(g *Graph, source int, bound float64, st *SearchState) {
	if len(st.dist) != g.topo.NumberOfVertices() {
		panic("geodesic: search state size does not match graph")
	}
	st.reset(bound)

	st.dist[source] = 0
	st.touched = append(st.touched, source)
	heap.Push(&st.queue, item{v: source, d: 0})

	offsets, targets := g.topo.offsets, g.topo.targets
	for st.queue.Len() > 0 {
		it := heap.Pop(&st.queue).(item)
		if st.settled[it.v] || it.d > st.dist[it.v] {
			continue
		}
		if it.d > bound {
			break
		}
		st.settled[it.v] = true

		for k := offsets[it.v]; k < offsets[it.v+1]; k++ {
			u := targets[k]
			if st.settled[u] {
				continue
			}
			nd := it.d + g.weights[k]
			if nd < st.dist[u] {
				if math.IsInf(st.dist[u], 1) {
					st.touched = append(st.touched, u)
				}
				st.dist[u] = nd
				heap.Push(&st.queue, item{v: u, d: nd})
			}
		}
	}
}

type item struct {
	v int
	d float64
}

// frontier is a binary min-heap of tentative distances
type frontier []item

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].d != f[j].d {
		return f[i].d < f[j].d
	}
	return f[i].v < f[j].v
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x interface{}) { *f = append(*f, x.(item)) }

func (f *frontier) Pop() interface{} {
	old := *f
	it := old[len(old)-1]
	*f = old[:len(old)-1]
	return it
}

// Engine pairs a graph with its own search state and keeps the result of the
// most recent query.
type Engine struct {
	graph *Graph
	state *SearchState
}

// NewEngine creates an engine for g.
func NewEngine(g *Graph) *Engine {
	return &Engine{graph: g, state: NewSearchState(g.topo.NumberOfVertices())}
}

// ComputeDistances searches from source up to bound, replacing the previous
// result.
func (e *Engine) ComputeDistances(source int, bound float64) *Engine {
	BoundedShortestPath(e.graph, source, bound, e.state)
	return e
}

// VertexDistance returns the distance to target from the last search.
func (e *Engine) VertexDistance(target int) float64 {
	return e.state.Distance(target)
}

// Visited returns how many vertices the last search reached.
func (e *Engine) Visited() int { return e.state.Visited() }

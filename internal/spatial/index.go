// Package spatial wraps gonum's k-d tree for the point queries the pipeline
// needs: radius searches, nearest neighbours and tolerance-based merging.
package spatial

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// point is a position carrying its index in the caller's slice
type point struct {
	r3.Vec
	idx int
}

// Compare implements the kdtree.Comparable interface
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p point) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(point).Vec))
}

// points is a collection that satisfies kdtree.Interface
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{points: p, Dim: d}, kdtree.MedianOfRandoms(plane{points: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer for points
type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.points[i].X < p.points[j].X
	case 1:
		return p.points[i].Y < p.points[j].Y
	case 2:
		return p.points[i].Z < p.points[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// Index answers proximity queries over a fixed point set.
type Index struct {
	tree *kdtree.Tree
	size int
}

// NewIndex builds a k-d tree over pts. The slice is not modified.
func NewIndex(pts []r3.Vec) *Index {
	data := make(points, len(pts))
	for i, p := range pts {
		data[i] = point{Vec: p, idx: i}
	}
	ix := &Index{size: len(pts)}
	if len(pts) > 0 {
		ix.tree = kdtree.New(data, false)
	}
	return ix
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return ix.size }

// Within returns the indices of all points at distance <= radius from q,
// in increasing index order.
func (ix *Index) Within(q r3.Vec, radius float64) []int {
	if ix.tree == nil {
		return nil
	}
	keeper := kdtree.NewDistKeeper(radius * radius)
	ix.tree.NearestSet(keeper, point{Vec: q, idx: -1})

	found := make([]int, 0, keeper.Len())
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable == nil {
			continue
		}
		found = append(found, item.Comparable.(point).idx)
	}
	sort.Ints(found)
	return found
}

// Nearest returns the index of the point closest to q and its distance.
// It returns -1 and +Inf on an empty index.
func (ix *Index) Nearest(q r3.Vec) (int, float64) {
	if ix.tree == nil {
		return -1, math.Inf(1)
	}
	c, d2 := ix.tree.Nearest(point{Vec: q, idx: -1})
	if c == nil {
		return -1, math.Inf(1)
	}
	return c.(point).idx, math.Sqrt(d2)
}

// Merge clusters points closer than tolerance. Points are visited in index
// order; an unassigned point starts a new cluster that absorbs every
// unassigned point within tolerance of it. It returns, for every input point,
// the id of its cluster and the representative (first) point of each cluster.
// The result depends only on the input order, not on the tree layout.
func Merge(pts []r3.Vec, tolerance float64) (mapping []int, merged []r3.Vec) {
	mapping = make([]int, len(pts))
	for i := range mapping {
		mapping[i] = -1
	}
	if tolerance <= 0 {
		merged = make([]r3.Vec, len(pts))
		for i, p := range pts {
			mapping[i] = i
			merged[i] = p
		}
		return mapping, merged
	}

	ix := NewIndex(pts)
	for i, p := range pts {
		if mapping[i] >= 0 {
			continue
		}
		id := len(merged)
		merged = append(merged, p)
		mapping[i] = id
		for _, j := range ix.Within(p, tolerance) {
			if mapping[j] < 0 {
				mapping[j] = id
			}
		}
	}
	return mapping, merged
}

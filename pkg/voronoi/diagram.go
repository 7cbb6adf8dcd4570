// Package voronoi produces the 3-D Voronoi diagram of a point set. Solvers
// are pluggable: an external qhull process speaking the "v Qbb p Fv" text
// protocol or the in-process Delaunay solver.
package voronoi

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Infinity is the vertex index of the point at infinity.
const Infinity = 0

// Ridge is a Voronoi face: the part of the bisector of two generators shared
// by their Voronoi regions. Vertices lists the face's Voronoi vertex indices
// in the order the solver emitted them.
type Ridge struct {
	Generators [2]int
	Vertices   []int
}

// IsInfinite reports whether the ridge touches the point at infinity.
func (r Ridge) IsInfinite() bool {
	for _, v := range r.Vertices {
		if v == Infinity {
			return true
		}
	}
	return false
}

// Diagram is a Voronoi diagram. Vertices[0] is the point at infinity and the
// remaining entries are the finite vertices.
type Diagram struct {
	Vertices []r3.Vec
	Ridges   []Ridge
}

// InfinitePoint is stored at Vertices[Infinity].
var InfinitePoint = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}

// NewDiagram creates a diagram from its finite vertices, prepending the point
// at infinity.
func NewDiagram(finite []r3.Vec, ridges []Ridge) *Diagram {
	vertices := make([]r3.Vec, 0, len(finite)+1)
	vertices = append(vertices, InfinitePoint)
	vertices = append(vertices, finite...)
	return &Diagram{Vertices: vertices, Ridges: ridges}
}

// NumberOfFiniteVertices returns the vertex count without the point at infinity.
func (d *Diagram) NumberOfFiniteVertices() int {
	if len(d.Vertices) == 0 {
		return 0
	}
	return len(d.Vertices) - 1
}

// Validate checks that every ridge references existing vertices and valid
// generators for a point set of size generators.
func (d *Diagram) Validate(generators int) error {
	if len(d.Vertices) == 0 || !math.IsInf(d.Vertices[Infinity].X, 1) {
		return fmt.Errorf("diagram has no point at infinity")
	}
	for i, r := range d.Ridges {
		for _, g := range r.Generators {
			if g < 0 || g >= generators {
				return fmt.Errorf("ridge %d: generator %d out of range [0,%d)", i, g, generators)
			}
		}
		if len(r.Vertices) == 0 {
			return fmt.Errorf("ridge %d has no vertices", i)
		}
		for _, v := range r.Vertices {
			if v < 0 || v >= len(d.Vertices) {
				return fmt.Errorf("ridge %d: vertex %d out of range [0,%d)", i, v, len(d.Vertices))
			}
		}
	}
	return nil
}

// Solver computes the Voronoi diagram of a point set. Generator indices in the
// result refer to positions in points.
type Solver interface {
	Solve(ctx context.Context, points []r3.Vec) (*Diagram, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, points []r3.Vec) (*Diagram, error)

// Solve calls f(ctx, points).
func (f SolverFunc) Solve(ctx context.Context, points []r3.Vec) (*Diagram, error) {
	return f(ctx, points)
}

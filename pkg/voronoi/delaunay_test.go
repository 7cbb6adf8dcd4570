package voronoi

import (
	"context"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

func randomCloud(n int, seed int64) []r3.Vec {
	rnd := rand.New(rand.NewSource(seed))
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{X: rnd.Float64() * 2, Y: rnd.Float64(), Z: rnd.Float64() * 3}
	}
	return pts
}

// TestDelaunaySolverVoronoiProperty checks that every finite ridge vertex is
// equidistant from both generators and no generator is closer to it
func TestDelaunaySolverVoronoiProperty(t *testing.T) {
	pts := randomCloud(80, 7)
	d, err := NewDelaunaySolver(zap.NewNop()).Solve(context.Background(), pts)
	if err != nil {
		t.Fatalf("Failed to solve: %v", err)
	}
	if err := d.Validate(len(pts)); err != nil {
		t.Fatalf("Invalid diagram: %v", err)
	}
	if d.NumberOfFiniteVertices() == 0 || len(d.Ridges) == 0 {
		t.Fatalf("Expected a non-trivial diagram, got %d vertices and %d ridges",
			d.NumberOfFiniteVertices(), len(d.Ridges))
	}

	finite := 0
	for i, r := range d.Ridges {
		a, b := pts[r.Generators[0]], pts[r.Generators[1]]
		if r.Generators[0] >= r.Generators[1] {
			t.Errorf("Ridge %d: generators %v not in increasing order", i, r.Generators)
		}
		for _, v := range r.Vertices {
			if v == Infinity {
				continue
			}
			finite++
			p := d.Vertices[v]
			da, db := r3.Norm(r3.Sub(p, a)), r3.Norm(r3.Sub(p, b))
			tol := 1e-4 * (1 + da)
			if math.Abs(da-db) > tol {
				t.Errorf("Ridge %d vertex %d: distances %f and %f to generators differ", i, v, da, db)
			}
			for k, q := range pts {
				if dq := r3.Norm(r3.Sub(p, q)); dq < da-tol {
					t.Errorf("Ridge %d vertex %d: point %d at %f is closer than generators at %f", i, v, k, dq, da)
					break
				}
			}
		}
	}
	if finite == 0 {
		t.Error("Expected at least one finite ridge vertex")
	}
}

// TestDelaunaySolverDeterministic runs the solver twice on the same input
func TestDelaunaySolverDeterministic(t *testing.T) {
	pts := randomCloud(50, 3)
	solver := NewDelaunaySolver(nil)
	d1, err := solver.Solve(context.Background(), pts)
	if err != nil {
		t.Fatalf("Failed to solve: %v", err)
	}
	d2, err := solver.Solve(context.Background(), pts)
	if err != nil {
		t.Fatalf("Failed to solve: %v", err)
	}
	if !reflect.DeepEqual(d1, d2) {
		t.Error("Expected identical diagrams for identical input")
	}
}

// TestDelaunaySolverCube handles the cospherical corners of a cube
func TestDelaunaySolverCube(t *testing.T) {
	var pts []r3.Vec
	for _, z := range []float64{0, 1} {
		for _, y := range []float64{0, 1} {
			for _, x := range []float64{0, 1} {
				pts = append(pts, r3.Vec{X: x, Y: y, Z: z})
			}
		}
	}
	d, err := NewDelaunaySolver(zap.NewNop()).Solve(context.Background(), pts)
	if err != nil {
		t.Fatalf("Failed to solve: %v", err)
	}

	// The joggle leaves flat tetrahedra on the faces and diagonal planes;
	// they must not add vertices of their own
	if d.NumberOfFiniteVertices() != 1 {
		t.Fatalf("Expected a single Voronoi vertex, got %v", d.Vertices[1:])
	}
	centre := r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	if r3.Norm(r3.Sub(d.Vertices[1], centre)) > 1e-6 {
		t.Errorf("Expected the Voronoi vertex at the cube centre, got %v", d.Vertices[1])
	}
	if err := d.Validate(len(pts)); err != nil {
		t.Errorf("Invalid diagram: %v", err)
	}
}

// TestDelaunaySolverErrors covers inputs that cannot be triangulated
func TestDelaunaySolverErrors(t *testing.T) {
	solver := NewDelaunaySolver(zap.NewNop())
	if _, err := solver.Solve(context.Background(), randomCloud(3, 1)); err == nil {
		t.Error("Expected an error for fewer than 4 points")
	}
	same := []r3.Vec{{X: 1}, {X: 1}, {X: 1}, {X: 1}}
	if _, err := solver.Solve(context.Background(), same); err == nil {
		t.Error("Expected an error for coincident points")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := solver.Solve(ctx, randomCloud(10, 1)); err == nil {
		t.Error("Expected an error for a cancelled context")
	}
}

// BenchmarkDelaunaySolver measures a medium sized point cloud
func BenchmarkDelaunaySolver(b *testing.B) {
	pts := randomCloud(1000, 11)
	solver := NewDelaunaySolver(zap.NewNop())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := solver.Solve(context.Background(), pts); err != nil {
			b.Fatal(err)
		}
	}
}

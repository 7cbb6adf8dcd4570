package skeleton

import (
	"context"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/geodesic"
	"medialskel/pkg/voronoi"
)

// TestPruneCubeTranscript walks the cube diagram through the pruner
func TestPruneCubeTranscript(t *testing.T) {
	mesh := mustPreprocess(t, cubeQuads())
	d, err := voronoi.Parse(strings.NewReader(cubeTranscript(mesh.Points())))
	if err != nil {
		t.Fatalf("Failed to parse transcript: %v", err)
	}
	inside := NewClassifier(mesh, 0.01).Classify(d)
	if !inside[1] {
		t.Fatal("Expected the cube centre to be inside")
	}

	pruner, err := NewPruner(mesh, 1, 1.0)
	if err != nil {
		t.Fatalf("Failed to create pruner: %v", err)
	}
	skel, stats := pruner.Prune(d, inside)

	if stats.Infinite != 24 || stats.Retained != 4 || stats.Total() != 28 {
		t.Errorf("Expected 24 infinite and 4 retained faces, got %+v", stats)
	}
	if len(skel.Points) != 1 || len(skel.Polys) != 4 {
		t.Fatalf("Expected 1 point and 4 cells, got %d and %d", len(skel.Points), len(skel.Polys))
	}
	radius := skel.CellData.Get("Radius")
	ratio := skel.CellData.Get("Pruning Ratio")
	geo := skel.CellData.Get("Geodesic")
	if radius == nil || ratio == nil || geo == nil {
		t.Fatal("Expected Radius, Geodesic and Pruning Ratio cell arrays")
	}
	for c := range skel.Polys {
		if math.Abs(radius.Values[c]-math.Sqrt(3)) > 1e-12 {
			t.Errorf("Cell %d: expected radius sqrt(3), got %f", c, radius.Values[c])
		}
		if ratio.Values[c] < 1.0 {
			t.Errorf("Cell %d: ratio %f below the threshold", c, ratio.Values[c])
		}
		if math.Abs(ratio.Values[c]-geo.Values[c]/radius.Values[c]) > 1e-12 {
			t.Errorf("Cell %d: ratio is not geodesic over radius", c)
		}
	}
}

// TestEvaluateReasons covers each decision on the cube
func TestEvaluateReasons(t *testing.T) {
	mesh := mustPreprocess(t, cubeQuads())
	pruner, err := NewPruner(mesh, 2, 1.2)
	if err != nil {
		t.Fatalf("Failed to create pruner: %v", err)
	}
	inside := []bool{false, true, false}

	// Find an edge, a face diagonal and a body diagonal of the cube
	var edge, body [2]int
	for i := 0; i < mesh.NumberOfPoints(); i++ {
		for j := i + 1; j < mesh.NumberOfPoints(); j++ {
			switch d := r3.Norm(r3.Sub(mesh.Point(i), mesh.Point(j))); {
			case math.Abs(d-1) < 1e-9:
				edge = [2]int{i, j}
			case math.Abs(d-math.Sqrt(3)) < 1e-9:
				body = [2]int{i, j}
			}
		}
	}

	cases := []struct {
		name  string
		ridge voronoi.Ridge
		want  PruneReason
	}{
		{"Infinite", voronoi.Ridge{Generators: body, Vertices: []int{1, 0}}, PruneInfinite},
		{"Outside", voronoi.Ridge{Generators: body, Vertices: []int{1, 2}}, PruneOutside},
		{"EdgeCount", voronoi.Ridge{Generators: edge, Vertices: []int{1}}, PruneEdgeCount},
		{"Retained", voronoi.Ridge{Generators: body, Vertices: []int{1}}, Retained},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pruner.Evaluate(tc.ridge, inside); got.Reason != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got.Reason)
			}
		})
	}

	strict, err := NewPruner(mesh, 1, 1.5)
	if err != nil {
		t.Fatalf("Failed to create pruner: %v", err)
	}
	if got := strict.Evaluate(voronoi.Ridge{Generators: body, Vertices: []int{1}}, inside); got.Reason != PruneRatio {
		t.Errorf("Expected a ratio of about 1.39 to fail a 1.5 threshold, got %v (ratio %f)", got.Reason, got.Ratio)
	}
}

// TestPrunedFacesSatisfyCriteria checks retained faces against unbounded searches
func TestPrunedFacesSatisfyCriteria(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping in short mode")
	}
	mesh := mustPreprocess(t, icosphere(2, r3.Vec{X: 1, Y: 0.7, Z: 0.5}, 0.01))
	d, err := voronoi.NewDelaunaySolver(zap.NewNop()).Solve(context.Background(), mesh.Points())
	if err != nil {
		t.Fatalf("Failed to solve: %v", err)
	}
	inside := NewClassifier(mesh, 1e-6).Classify(d)

	nDegrees, xPrune := 2, 1.2
	pruner, err := NewPruner(mesh, nDegrees, xPrune)
	if err != nil {
		t.Fatalf("Failed to create pruner: %v", err)
	}

	topo, err := geodesic.NewTopology(mesh)
	if err != nil {
		t.Fatalf("Failed to build topology: %v", err)
	}
	edges := geodesic.NewEngine(topo.Weighted(geodesic.Unit))
	lengths := geodesic.NewEngine(topo.Weighted(geodesic.Euclidean))

	retained := 0
	for _, r := range d.Ridges {
		dec := pruner.Evaluate(r, inside)
		if dec.Reason != Retained {
			continue
		}
		retained++
		g1, g2 := r.Generators[0], r.Generators[1]
		if n := edges.ComputeDistances(g1, math.Inf(1)).VertexDistance(g2); n < float64(nDegrees) {
			t.Errorf("Ridge %v retained with edge distance %f", r.Generators, n)
		}
		exact := lengths.ComputeDistances(g1, math.Inf(1)).VertexDistance(g2)
		if exact/dec.Radius < xPrune {
			t.Errorf("Ridge %v retained with ratio %f", r.Generators, exact/dec.Radius)
		}
		if dec.Ratio < xPrune {
			t.Errorf("Ridge %v reports ratio %f below threshold", r.Generators, dec.Ratio)
		}
		for _, v := range r.Vertices {
			if !inside[v] {
				t.Errorf("Ridge %v retained with outside vertex %d", r.Generators, v)
			}
		}
	}
	if retained == 0 {
		t.Error("Expected some faces to survive pruning on an ellipsoid")
	}
}

package skeleton

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
	"medialskel/pkg/surface"
	"medialskel/pkg/voronoi"
)

// cubeQuads returns the unit cube as 6 quads
func cubeQuads() *models.PolyData {
	return &models.PolyData{
		Points: []r3.Vec{
			{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
		},
		Polys: [][]int{
			{0, 3, 2, 1}, {4, 5, 6, 7},
			{0, 1, 5, 4}, {2, 3, 7, 6},
			{1, 2, 6, 5}, {0, 4, 7, 3},
		},
	}
}

// cubeTranscript renders the diagram qhull prints for the corners of a unit
// cube: every corner pair shares a face reaching infinity, except opposite
// corners which meet only in the centre vertex.
func cubeTranscript(points []r3.Vec) string {
	var sb strings.Builder
	sb.WriteString("3\n1\n0.5 0.5 0.5\n")
	var ridges []string
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			if math.Abs(r3.Norm(r3.Sub(points[i], points[j]))-math.Sqrt(3)) < 1e-9 {
				ridges = append(ridges, fmt.Sprintf("3 %d %d 1", i, j))
			} else {
				ridges = append(ridges, fmt.Sprintf("4 %d %d 1 0", i, j))
			}
		}
	}
	fmt.Fprintf(&sb, "%d\n%s\n", len(ridges), strings.Join(ridges, "\n"))
	return sb.String()
}

// transcriptSolver parses a canned transcript generated from the input points
func transcriptSolver(render func([]r3.Vec) string) voronoi.Solver {
	return voronoi.SolverFunc(func(ctx context.Context, points []r3.Vec) (*voronoi.Diagram, error) {
		return voronoi.Parse(strings.NewReader(render(points)))
	})
}

// icosphere builds a subdivided icosahedron, scaled to an ellipsoid with a
// little deterministic noise so no four points are cospherical
func icosphere(subdivisions int, scale r3.Vec, noise float64) *models.PolyData {
	t := (1 + math.Sqrt(5)) / 2
	pts := []r3.Vec{
		{X: -1, Y: t}, {X: 1, Y: t}, {X: -1, Y: -t}, {X: 1, Y: -t},
		{Y: -1, Z: t}, {Y: 1, Z: t}, {Y: -1, Z: -t}, {Y: 1, Z: -t},
		{X: t, Z: -1}, {X: t, Z: 1}, {X: -t, Z: -1}, {X: -t, Z: 1},
	}
	for i := range pts {
		pts[i] = r3.Unit(pts[i])
	}
	faces := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}

	for s := 0; s < subdivisions; s++ {
		mid := make(map[[2]int]int)
		midpoint := func(a, b int) int {
			key := [2]int{min(a, b), max(a, b)}
			if id, ok := mid[key]; ok {
				return id
			}
			pts = append(pts, r3.Unit(r3.Add(pts[a], pts[b])))
			mid[key] = len(pts) - 1
			return len(pts) - 1
		}
		var next [][3]int
		for _, f := range faces {
			ab, bc, ca := midpoint(f[0], f[1]), midpoint(f[1], f[2]), midpoint(f[2], f[0])
			next = append(next, [3]int{f[0], ab, ca}, [3]int{f[1], bc, ab}, [3]int{f[2], ca, bc}, [3]int{ab, bc, ca})
		}
		faces = next
	}

	rnd := rand.New(rand.NewSource(42))
	pd := &models.PolyData{}
	for _, p := range pts {
		jitter := 1 + noise*(2*rnd.Float64()-1)
		pd.Points = append(pd.Points, r3.Vec{X: p.X * scale.X * jitter, Y: p.Y * scale.Y * jitter, Z: p.Z * scale.Z * jitter})
	}
	for _, f := range faces {
		pd.Polys = append(pd.Polys, []int{f[0], f[1], f[2]})
	}
	return pd
}

func mustPreprocess(t *testing.T, raw *models.PolyData) *surface.Mesh {
	t.Helper()
	mesh, err := surface.Preprocess(raw, surface.DefaultWeldTolerance)
	if err != nil {
		t.Fatalf("Failed to preprocess: %v", err)
	}
	return mesh
}

package skeleton

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
	"medialskel/pkg/meshio"
	"medialskel/pkg/voronoi"
)

func cubeParams() *Params {
	params := DefaultParams()
	params.SearchTolerance = 0.01
	params.Degrees = 1
	params.PruneRatio = 1.0
	return params
}

// TestExtractCube reduces the cube to its centre
func TestExtractCube(t *testing.T) {
	e := NewExtractor(cubeParams(), transcriptSolver(cubeTranscript), zap.NewNop())
	skel, err := e.Run(context.Background(), cubeQuads())
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}

	if len(skel.Points) != 1 || len(skel.Polys) != 4 {
		t.Fatalf("Expected 1 point and 4 cells, got %d and %d", len(skel.Points), len(skel.Polys))
	}
	centre := r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	if r3.Norm(r3.Sub(skel.Points[0], centre)) > 1e-9 {
		t.Errorf("Expected the skeleton point at the centre, got %v", skel.Points[0])
	}
	radius := skel.PointData.Get(models.RadiusArray)
	if radius == nil || math.Abs(radius.Values[0]-math.Sqrt(3)) > 1e-12 {
		t.Fatalf("Expected point radius sqrt(3), got %v", radius)
	}
	// The radius spans a corner pair, so the centre sits half of it from every corner
	if d := r3.Norm(r3.Sub(skel.Points[0], r3.Vec{})); math.Abs(d-radius.Values[0]/2) > 1e-9 {
		t.Errorf("Expected centre to corner distance %f, got %f", radius.Values[0]/2, d)
	}
	if err := skel.Validate(); err != nil {
		t.Errorf("Expected a valid skeleton, got %v", err)
	}

	m := e.GetMetrics()
	if m.RunID == "" {
		t.Error("Expected a run id")
	}
	if m.BoundaryPoints != 8 || m.BoundaryTriangles != 12 {
		t.Errorf("Expected 8 points and 12 triangles, got %d and %d", m.BoundaryPoints, m.BoundaryTriangles)
	}
	if m.VoronoiVertices != 1 || m.InsideVertices != 1 || m.Ridges != 28 {
		t.Errorf("Unexpected diagram metrics %+v", m)
	}
	if m.Pruned.Infinite != 24 || m.Pruned.Retained != 4 {
		t.Errorf("Expected 24 infinite and 4 retained faces, got %+v", m.Pruned)
	}
	if m.OutputPoints != 1 || m.OutputCells != 4 {
		t.Errorf("Expected 1 output point and 4 cells, got %d and %d", m.OutputPoints, m.OutputCells)
	}
	if math.Abs(m.MaxBoundaryDistance-math.Sqrt(3)/2) > 1e-9 {
		t.Errorf("Expected max boundary distance %f, got %f", math.Sqrt(3)/2, m.MaxBoundaryDistance)
	}
}

// TestExtractCubeDelaunay reduces the cube to its centre with the in-process solver
func TestExtractCubeDelaunay(t *testing.T) {
	e := NewExtractor(cubeParams(), voronoi.NewDelaunaySolver(nil), nil)
	skel, err := e.Run(context.Background(), cubeQuads())
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}

	m := e.GetMetrics()
	if m.VoronoiVertices != 1 || m.InsideVertices != 1 {
		t.Errorf("Expected a single inside Voronoi vertex, got %d vertices and %d inside", m.VoronoiVertices, m.InsideVertices)
	}
	if m.Pruned.Outside != 0 {
		t.Errorf("Expected no faces pruned as outside, got %+v", m.Pruned)
	}
	if len(skel.Points) != 1 || len(skel.Polys) == 0 {
		t.Fatalf("Expected 1 point and at least one cell, got %d and %d", len(skel.Points), len(skel.Polys))
	}
	centre := r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	if r3.Norm(r3.Sub(skel.Points[0], centre)) > 1e-6 {
		t.Errorf("Expected the skeleton point at the centre, got %v", skel.Points[0])
	}
	if math.Abs(m.MaxBoundaryDistance-math.Sqrt(3)/2) > 1e-6 {
		t.Errorf("Expected max boundary distance %f, got %f", math.Sqrt(3)/2, m.MaxBoundaryDistance)
	}
}

// TestProcessFiles runs the pipeline from and to disk
func TestProcessFiles(t *testing.T) {
	dir := t.TempDir()
	params := cubeParams()
	params.InputFile = filepath.Join(dir, "cube.obj")
	params.OutputFile = filepath.Join(dir, "skeleton.vtk")
	params.DiagramFile = filepath.Join(dir, "diagram.txt")
	if err := meshio.WriteFile(params.InputFile, cubeQuads()); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	if err := NewExtractor(params, transcriptSolver(cubeTranscript), nil).Process(context.Background()); err != nil {
		t.Fatalf("Failed to process: %v", err)
	}

	skel, err := meshio.ReadFile(params.OutputFile)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if len(skel.Points) != 1 || len(skel.Polys) != 4 {
		t.Errorf("Expected 1 point and 4 cells on disk, got %d and %d", len(skel.Points), len(skel.Polys))
	}
	if skel.CellData.Get(models.PruningRatioArray) == nil {
		t.Error("Expected the Pruning Ratio array to be written")
	}

	f, err := os.Open(params.DiagramFile)
	if err != nil {
		t.Fatalf("Expected a diagram file: %v", err)
	}
	defer f.Close()
	d, err := voronoi.Parse(f)
	if err != nil {
		t.Fatalf("Failed to parse diagram file: %v", err)
	}
	if len(d.Ridges) != 28 || d.NumberOfFiniteVertices() != 1 {
		t.Errorf("Expected 1 vertex and 28 ridges, got %d and %d", d.NumberOfFiniteVertices(), len(d.Ridges))
	}
}

// TestProcessOutputFailure skips the diagram file when the output cannot be written
func TestProcessOutputFailure(t *testing.T) {
	dir := t.TempDir()
	params := cubeParams()
	params.InputFile = filepath.Join(dir, "cube.obj")
	params.OutputFile = filepath.Join(dir, "skeleton.ply")
	params.DiagramFile = filepath.Join(dir, "diagram.txt")
	if err := meshio.WriteFile(params.InputFile, cubeQuads()); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	err := NewExtractor(params, transcriptSolver(cubeTranscript), nil).Process(context.Background())
	if !errors.Is(err, meshio.ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat, got %v", err)
	}
	for _, path := range []string{params.OutputFile, params.DiagramFile} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected no file at %s", path)
		}
	}
}

// TestProcessSolverFailure leaves no output behind when the solver fails
func TestProcessSolverFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping shell script solver on windows")
	}
	dir := t.TempDir()
	solverPath := filepath.Join(dir, "qhull")
	if err := os.WriteFile(solverPath, []byte("#!/bin/sh\ncat > /dev/null\necho 'QH6214 not enough points' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("Failed to write fake solver: %v", err)
	}

	params := cubeParams()
	params.InputFile = filepath.Join(dir, "cube.obj")
	params.OutputFile = filepath.Join(dir, "skeleton.vtk")
	if err := meshio.WriteFile(params.InputFile, cubeQuads()); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	err := NewExtractor(params, voronoi.NewQhullSolver(solverPath, nil), nil).Process(context.Background())
	var oracle *voronoi.OracleError
	if !errors.As(err, &oracle) {
		t.Fatalf("Expected an OracleError, got %v", err)
	}
	if oracle.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", oracle.ExitCode)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to list directory: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "qhull" && entry.Name() != "cube.obj" {
			t.Errorf("Unexpected file %s left behind", entry.Name())
		}
	}
}

// TestRunRejectsInvalidParams checks parameter validation
func TestRunRejectsInvalidParams(t *testing.T) {
	cases := map[string]func(*Params){
		"tolerance":  func(p *Params) { p.SearchTolerance = -1 },
		"degrees":    func(p *Params) { p.Degrees = -1 },
		"ratio":      func(p *Params) { p.PruneRatio = -0.5 },
		"components": func(p *Params) { p.Components = -2 },
		"bins":       func(p *Params) { p.Bins = -1 },
		"weld":       func(p *Params) { p.WeldTolerance = -1e-3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			params := DefaultParams()
			mutate(params)
			solved := false
			solver := voronoi.SolverFunc(func(ctx context.Context, points []r3.Vec) (*voronoi.Diagram, error) {
				solved = true
				return nil, errors.New("unreachable")
			})
			if _, err := NewExtractor(params, solver, nil).Run(context.Background(), cubeQuads()); err == nil {
				t.Error("Expected an error")
			}
			if solved {
				t.Error("Expected the solver not to run")
			}
		})
	}
}

// TestRunIsDeterministic extracts an ellipsoid twice with every stage enabled
func TestRunIsDeterministic(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping in short mode")
	}
	raw := icosphere(2, r3.Vec{X: 1, Y: 0.7, Z: 0.5}, 0.01)
	params := DefaultParams()
	params.Components = 1
	params.Bins = 20

	run := func() (*models.PolyData, Metrics) {
		e := NewExtractor(params, voronoi.NewDelaunaySolver(nil), nil)
		skel, err := e.Run(context.Background(), raw)
		if err != nil {
			t.Fatalf("Failed to extract: %v", err)
		}
		return skel, e.GetMetrics()
	}
	first, m1 := run()
	second, m2 := run()

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical skeletons from identical runs")
	}
	if m1.RunID == m2.RunID {
		t.Error("Expected a fresh run id per run")
	}
	if len(first.Points) == 0 {
		t.Fatal("Expected a non-empty skeleton")
	}
	if m1.MaxBoundaryDistance > m1.Bounds.Diagonal() {
		t.Errorf("Skeleton reaches %f from the boundary, beyond the diagonal %f", m1.MaxBoundaryDistance, m1.Bounds.Diagonal())
	}
	if m1.Components.Found == 0 || m1.Components.Kept != 1 {
		t.Errorf("Expected one component kept, got %+v", m1.Components)
	}
	if m1.MeanThickness <= 0 || m1.MeanThickness > m1.Bounds.Diagonal() {
		t.Errorf("Expected a mean thickness within the ellipsoid, got %f", m1.MeanThickness)
	}
}

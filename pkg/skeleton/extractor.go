package skeleton

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medialskel/internal/models"
	"medialskel/pkg/meshio"
	"medialskel/pkg/surface"
	"medialskel/pkg/voronoi"
)

// Params holds the extraction parameters.
type Params struct {
	// InputFile is the closed surface mesh (.vtk, .stl or .obj)
	InputFile string

	// OutputFile receives the skeleton; the format follows the extension
	OutputFile string

	// SearchTolerance enables the enclosed-point test for Voronoi vertices
	// when positive. Zero keeps only the bounding box test.
	SearchTolerance float64

	// Degrees is the minimum number of mesh edges between the generators of
	// a retained face
	Degrees int

	// PruneRatio is the minimum geodesic to Euclidean distance ratio
	// between the generators of a retained face
	PruneRatio float64

	// Components is the number of connected components to keep, 0 keeps all
	Components int

	// Bins is the number of clustering bins along the longest axis, 0
	// disables clustering
	Bins int

	// WeldTolerance merges input vertices closer than this distance
	WeldTolerance float64

	// DiagramFile, when set, receives the raw Voronoi diagram in solver
	// text format. Process writes it after the output file.
	DiagramFile string
}

// DefaultParams returns the parameters used when nothing else is given.
func DefaultParams() *Params {
	return &Params{
		SearchTolerance: 1e-6,
		Degrees:         2,
		PruneRatio:      1.2,
		Components:      0,
		Bins:            0,
		WeldTolerance:   surface.DefaultWeldTolerance,
	}
}

// Validate checks the parameter ranges.
func (p *Params) Validate() error {
	switch {
	case p.SearchTolerance < 0:
		return fmt.Errorf("search tolerance must not be negative, got %g", p.SearchTolerance)
	case p.Degrees < 0:
		return fmt.Errorf("degrees must not be negative, got %d", p.Degrees)
	case p.PruneRatio < 0:
		return fmt.Errorf("prune ratio must not be negative, got %g", p.PruneRatio)
	case p.Components < 0:
		return fmt.Errorf("component count must not be negative, got %d", p.Components)
	case p.Bins < 0:
		return fmt.Errorf("bin count must not be negative, got %d", p.Bins)
	case p.WeldTolerance < 0:
		return fmt.Errorf("weld tolerance must not be negative, got %g", p.WeldTolerance)
	}
	return nil
}

// Extractor runs the skeleton pipeline:
// 1. Preprocessing the boundary surface
// 2. Computing the Voronoi diagram of its vertices
// 3. Classifying Voronoi vertices as inside or outside
// 4. Pruning Voronoi faces
// 5. Removing orphans and unwanted components
// 6. Converting cell data to point data and measuring thickness
// 7. Clustering and orienting normals
//
// Every stage runs once; the first error ends the run.
type Extractor struct {
	params  *Params
	solver  voronoi.Solver
	logger  *zap.Logger
	metrics Metrics
	diagram *voronoi.Diagram
}

// NewExtractor creates an extractor. A nil logger discards log output.
func NewExtractor(params *Params, solver voronoi.Solver, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{params: params, solver: solver, logger: logger}
}

// Process reads the input file, runs the pipeline and writes the output file,
// then the diagram file when one is set. Nothing is written when the pipeline
// fails, and the diagram file is not written when the output write fails.
func (e *Extractor) Process(ctx context.Context) error {
	raw, err := meshio.ReadFile(e.params.InputFile)
	if err != nil {
		return fmt.Errorf("failed to read input surface: %w", err)
	}

	skel, err := e.Run(ctx, raw)
	if err != nil {
		return err
	}

	if err := meshio.WriteFile(e.params.OutputFile, skel); err != nil {
		return fmt.Errorf("failed to write output surface: %w", err)
	}
	e.logger.Info("wrote skeleton",
		zap.String("run", e.metrics.RunID),
		zap.String("path", e.params.OutputFile))

	if e.params.DiagramFile != "" {
		if err := meshio.WriteAtomic(e.params.DiagramFile, func(w io.Writer) error {
			return voronoi.Encode(w, e.diagram)
		}); err != nil {
			return fmt.Errorf("failed to write diagram file: %w", err)
		}
		e.logger.Info("wrote voronoi diagram",
			zap.String("run", e.metrics.RunID),
			zap.String("path", e.params.DiagramFile))
	}
	return nil
}

// Run extracts the skeleton of raw.
func (e *Extractor) Run(ctx context.Context, raw *models.PolyData) (*models.PolyData, error) {
	if err := e.params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	start := time.Now()
	e.metrics = Metrics{RunID: uuid.NewString()}
	e.diagram = nil
	log := e.logger.With(zap.String("run", e.metrics.RunID))

	// Step 1: Preprocess the boundary
	log.Info("Step 1: preprocessing surface", zap.Int("points", len(raw.Points)), zap.Int("polygons", len(raw.Polys)))
	mesh, err := surface.Preprocess(raw, e.params.WeldTolerance)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess surface: %w", err)
	}
	e.metrics.BoundaryPoints = mesh.NumberOfPoints()
	e.metrics.BoundaryTriangles = mesh.NumberOfTriangles()
	e.metrics.Bounds = mesh.Bounds()
	log.Info("boundary mesh ready",
		zap.Int("points", mesh.NumberOfPoints()),
		zap.Int("triangles", mesh.NumberOfTriangles()),
		zap.Stringer("bounds", mesh.Bounds()))

	// Step 2: Voronoi diagram
	log.Info("Step 2: computing voronoi diagram")
	diagram, err := e.solver.Solve(ctx, mesh.Points())
	if err != nil {
		return nil, fmt.Errorf("failed to compute voronoi diagram: %w", err)
	}
	if err := diagram.Validate(mesh.NumberOfPoints()); err != nil {
		return nil, fmt.Errorf("invalid voronoi diagram: %w", err)
	}
	e.diagram = diagram
	e.metrics.VoronoiVertices = diagram.NumberOfFiniteVertices()
	e.metrics.Ridges = len(diagram.Ridges)

	// Step 3: Inside/outside classification
	log.Info("Step 3: selecting points inside mesh",
		zap.Int("vertices", diagram.NumberOfFiniteVertices()),
		zap.Float64("tolerance", e.params.SearchTolerance))
	inside := NewClassifier(mesh, e.params.SearchTolerance).Classify(diagram)
	for _, in := range inside {
		if in {
			e.metrics.InsideVertices++
		}
	}

	// Step 4: Pruning
	log.Info("Step 4: selecting faces using pruning criteria", zap.Int("faces", len(diagram.Ridges)))
	pruner, err := NewPruner(mesh, e.params.Degrees, e.params.PruneRatio)
	if err != nil {
		return nil, err
	}
	skel, stats := pruner.Prune(diagram, inside)
	e.metrics.Pruned = stats
	log.Info("pruning done",
		zap.Int("infinite", stats.Infinite),
		zap.Int("outside", stats.Outside),
		zap.Int("edgeCount", stats.EdgeCount),
		zap.Int("ratio", stats.Ratio),
		zap.Int("retained", stats.Retained))

	// Step 5: Orphans and components
	log.Info("Step 5: cleaning up topology")
	before := len(skel.Points)
	skel, e.metrics.OrphansRemoved = RemoveOrphans(skel)
	log.Info("clean filter", zap.Int("from", before), zap.Int("to", len(skel.Points)))
	if e.params.Components > 0 {
		skel, e.metrics.Components = KeepComponents(skel, e.params.Components)
		log.Info("connected component constraint",
			zap.Int("found", e.metrics.Components.Found),
			zap.Int("removedCells", e.metrics.Components.RemovedCells),
			zap.Int("removedPoints", e.metrics.Components.RemovedPoints))
	}

	// Step 6: Point data and thickness
	log.Info("Step 6: converting cell data to point data")
	skel = CellToPoint(skel)
	e.metrics.SurfaceArea, e.metrics.MeanThickness, e.metrics.MedianThickness = thickness(skel)
	log.Info("thickness",
		zap.Float64("area", e.metrics.SurfaceArea),
		zap.Float64("mean", e.metrics.MeanThickness),
		zap.Float64("median", e.metrics.MedianThickness))

	// Step 7: Clustering and normals
	log.Info("Step 7: simplifying and orienting normals")
	if e.params.Bins > 0 {
		skel, e.metrics.Cluster = Cluster(skel, e.params.Bins)
		d := e.metrics.Cluster.Divisions
		log.Info("quadric clustering",
			zap.Ints("divisions", d[:]),
			zap.Int("points", e.metrics.Cluster.Points),
			zap.Int("cells", e.metrics.Cluster.Cells))
	}
	skel = OrientNormals(skel)

	e.metrics.OutputPoints = len(skel.Points)
	e.metrics.OutputCells = len(skel.Polys)
	e.metrics.MaxBoundaryDistance = maxBoundaryDistance(skel, mesh)
	e.metrics.Duration = time.Since(start)
	log.Info("skeleton extracted",
		zap.Int("points", e.metrics.OutputPoints),
		zap.Int("cells", e.metrics.OutputCells),
		zap.Duration("duration", e.metrics.Duration))
	return skel, nil
}

// GetMetrics returns the metrics of the last run.
func (e *Extractor) GetMetrics() Metrics {
	return e.metrics
}

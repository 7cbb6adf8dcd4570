package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"medialskel/pkg/config"
	"medialskel/pkg/skeleton"
)

func main() {
	// Parse command line arguments
	defaults := config.DefaultConfig()
	configPath := flag.String("config", "medialskel.yaml", "YAML configuration file (defaults are used when missing)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	inputFile := flag.String("input", "", "Closed input surface (.vtk, .stl or .obj)")
	outputFile := flag.String("output", "", "Output skeleton (.vtk, .stl or .obj)")
	degrees := flag.Int("degrees", defaults.Skeleton.Degrees, "Minimum mesh edge distance between the generators of a kept face")
	prune := flag.Float64("prune", defaults.Skeleton.PruneRatio, "Minimum geodesic to Euclidean ratio of a kept face")
	components := flag.Int("components", defaults.Skeleton.Components, "Number of connected components to keep (0 keeps all)")
	tolerance := flag.Float64("tolerance", defaults.Skeleton.SearchTolerance, "Enclosed-point tolerance (0 uses the bounding box only)")
	bins := flag.Int("bins", defaults.Skeleton.Bins, "Clustering bins along the longest axis (0 disables clustering)")
	solverName := flag.String("solver", defaults.Voronoi.Solver, "Voronoi solver: qhull or delaunay")
	diagramFile := flag.String("diagram", "", "Also write the raw Voronoi diagram to this file")
	verbose := flag.Bool("verbose", false, "Log every stage at debug level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [input output]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags given on the command line win over the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "degrees":
			cfg.Skeleton.Degrees = *degrees
		case "prune":
			cfg.Skeleton.PruneRatio = *prune
		case "components":
			cfg.Skeleton.Components = *components
		case "tolerance":
			cfg.Skeleton.SearchTolerance = *tolerance
		case "bins":
			cfg.Skeleton.Bins = *bins
		case "solver":
			cfg.Voronoi.Solver = *solverName
		case "diagram":
			cfg.Output.DiagramFile = *diagramFile
		case "verbose":
			if *verbose {
				cfg.Logging.Level = "debug"
				cfg.Logging.Development = true
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Positional arguments stand in for -input and -output
	args := flag.Args()
	if *inputFile == "" && len(args) > 0 {
		*inputFile, args = args[0], args[1:]
	}
	if *outputFile == "" && len(args) > 0 {
		*outputFile = args[0]
	}
	if *inputFile == "" || *outputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	solver, err := cfg.Solver(logger)
	if err != nil {
		log.Fatalf("Failed to create voronoi solver: %v", err)
	}

	params := cfg.Params()
	params.InputFile = *inputFile
	params.OutputFile = *outputFile

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("================================")
	fmt.Println("VORONOI MEDIAL SKELETON EXTRACTION")
	fmt.Println("================================")

	extractor := skeleton.NewExtractor(params, solver, logger)
	if err := extractor.Process(ctx); err != nil {
		logger.Sync()
		log.Fatalf("Skeleton extraction failed: %v", err)
	}

	printReport(extractor.GetMetrics(), params)
}

func printReport(m skeleton.Metrics, params *skeleton.Params) {
	fmt.Printf("\nSkeleton extracted in %.2f seconds\n", m.Duration.Seconds())
	fmt.Printf("Output saved to: %s\n\n", params.OutputFile)

	fmt.Printf("Boundary surface:\n")
	fmt.Printf("- Points: %d\n", m.BoundaryPoints)
	fmt.Printf("- Triangles: %d\n", m.BoundaryTriangles)
	fmt.Printf("- Bounds: %s\n", m.Bounds)

	fmt.Printf("\nVoronoi diagram:\n")
	fmt.Printf("- Vertices: %d (%d inside)\n", m.VoronoiVertices, m.InsideVertices)
	fmt.Printf("- Faces: %d\n", m.Ridges)

	fmt.Printf("\nPruning (degrees %d, ratio %.3f):\n", params.Degrees, params.PruneRatio)
	fmt.Printf("- Infinite: %d\n", m.Pruned.Infinite)
	fmt.Printf("- Outside: %d\n", m.Pruned.Outside)
	fmt.Printf("- Edge count: %d\n", m.Pruned.EdgeCount)
	fmt.Printf("- Ratio: %d\n", m.Pruned.Ratio)
	fmt.Printf("- Retained: %d\n", m.Pruned.Retained)

	fmt.Printf("\nCleanup:\n")
	fmt.Printf("- Orphan points removed: %d\n", m.OrphansRemoved)
	if params.Components > 0 {
		fmt.Printf("- Components: %d found, %d kept, %d cells and %d points removed\n",
			m.Components.Found, m.Components.Kept, m.Components.RemovedCells, m.Components.RemovedPoints)
	}
	if params.Bins > 0 {
		d := m.Cluster.Divisions
		fmt.Printf("- Clustering: %dx%dx%d bins\n", d[0], d[1], d[2])
	}

	fmt.Printf("\nSkeleton:\n")
	fmt.Printf("- Points: %d\n", m.OutputPoints)
	fmt.Printf("- Cells: %d\n", m.OutputCells)
	fmt.Printf("- Surface area: %.6f\n", m.SurfaceArea)
	fmt.Printf("- Mean thickness: %.6f\n", m.MeanThickness)
	fmt.Printf("- Median thickness: %.6f\n", m.MedianThickness)
	fmt.Printf("- Max distance to boundary: %.6f\n", m.MaxBoundaryDistance)
}

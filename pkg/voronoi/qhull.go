package voronoi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultQhullArgs requests Voronoi vertices and ridges.
var DefaultQhullArgs = []string{"v", "Qbb", "p", "Fv"}

// OracleError is returned when the solver process exits unsuccessfully.
type OracleError struct {
	ExitCode int
	Stderr   string
}

func (e *OracleError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("voronoi solver exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("voronoi solver exited with code %d: %s", e.ExitCode, msg)
}

// QhullSolver runs an external qhull binary. The points are written to its
// standard input and the diagram is parsed from its standard output. The
// process is killed when the context is cancelled.
type QhullSolver struct {
	Path   string
	Args   []string
	Logger *zap.Logger
}

// NewQhullSolver creates a solver for the qhull binary at path, or "qhull"
// from PATH when path is empty.
func NewQhullSolver(path string, logger *zap.Logger) *QhullSolver {
	if path == "" {
		path = "qhull"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QhullSolver{
		Path:   path,
		Args:   append([]string(nil), DefaultQhullArgs...),
		Logger: logger,
	}
}

// Solve implements Solver.
func (q *QhullSolver) Solve(ctx context.Context, points []r3.Vec) (*Diagram, error) {
	var in bytes.Buffer
	if err := writeQhullInput(&in, points); err != nil {
		return nil, err
	}

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, q.Path, q.Args...)
	cmd.Stdin = &in
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	q.logger().Debug("running voronoi solver",
		zap.String("path", q.Path),
		zap.Strings("args", q.Args),
		zap.Int("points", len(points)))

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("voronoi solver interrupted: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &OracleError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("failed to run voronoi solver %s: %w", q.Path, err)
	}

	d, err := Parse(&out)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(len(points)); err != nil {
		return nil, fmt.Errorf("invalid voronoi solver output: %w", err)
	}
	return d, nil
}

func (q *QhullSolver) logger() *zap.Logger {
	if q.Logger == nil {
		return zap.NewNop()
	}
	return q.Logger
}

// writeQhullInput writes points in qhull's input format: the dimension, the
// point count and one point per line.
func writeQhullInput(w io.Writer, points []r3.Vec) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "3\n%d\n", len(points))
	for _, p := range points {
		fmt.Fprintf(bw, "%s %s %s\n", formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z))
	}
	return bw.Flush()
}

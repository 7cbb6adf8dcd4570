package voronoi

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ParseError reports a deviation from the solver text protocol.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("voronoi output line %d: %s", e.Line, e.Msg)
}

// lineReader yields the non-blank lines of a stream split into fields.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func (lr *lineReader) next(what string) ([]string, error) {
	for lr.sc.Scan() {
		lr.line++
		fields := strings.Fields(lr.sc.Text())
		if len(fields) > 0 {
			return fields, nil
		}
	}
	if err := lr.sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read voronoi output: %w", err)
	}
	return nil, &ParseError{Line: lr.line + 1, Msg: "unexpected end of input, expected " + what}
}

func (lr *lineReader) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: lr.line, Msg: fmt.Sprintf(format, args...)}
}

// count reads a line holding a single non-negative integer.
func (lr *lineReader) count(what string) (int, error) {
	fields, err := lr.next(what)
	if err != nil {
		return 0, err
	}
	if len(fields) != 1 {
		return 0, lr.errorf("expected %s, got %d tokens", what, len(fields))
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, lr.errorf("invalid %s %q", what, fields[0])
	}
	return n, nil
}

// Parse reads a diagram in the format printed by "qhull v Qbb p Fv":
//
//	<dimension>
//	<N>
//	N lines "x y z"
//	<M>
//	M lines "m g1 g2 v1 ... v(m-2)"
//
// Vertex indices are 1-based into the N listed vertices and 0 stands for the
// point at infinity, which matches the layout of Diagram.Vertices.
func Parse(r io.Reader) (*Diagram, error) {
	lr := &lineReader{sc: bufio.NewScanner(r)}
	lr.sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	// The leading dimension token is not used
	if _, err := lr.next("dimension"); err != nil {
		return nil, err
	}

	nv, err := lr.count("vertex count")
	if err != nil {
		return nil, err
	}
	finite := make([]r3.Vec, nv)
	for i := range finite {
		fields, err := lr.next("vertex coordinates")
		if err != nil {
			return nil, err
		}
		if len(fields) != 3 {
			return nil, lr.errorf("vertex %d: expected 3 coordinates, got %d", i+1, len(fields))
		}
		var c [3]float64
		for k, f := range fields {
			if c[k], err = strconv.ParseFloat(f, 64); err != nil {
				return nil, lr.errorf("vertex %d: invalid coordinate %q", i+1, f)
			}
		}
		finite[i] = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
	}

	nr, err := lr.count("ridge count")
	if err != nil {
		return nil, err
	}
	ridges := make([]Ridge, nr)
	for j := range ridges {
		fields, err := lr.next("ridge")
		if err != nil {
			return nil, err
		}
		ints := make([]int, len(fields))
		for k, f := range fields {
			if ints[k], err = strconv.Atoi(f); err != nil {
				return nil, lr.errorf("ridge %d: invalid index %q", j, f)
			}
		}
		m := ints[0]
		if m < 3 {
			return nil, lr.errorf("ridge %d: size %d leaves no vertices", j, m)
		}
		if len(ints) != m+1 {
			return nil, lr.errorf("ridge %d: size %d but %d indices follow", j, m, len(ints)-1)
		}
		g1, g2 := ints[1], ints[2]
		if g1 < 0 || g2 < 0 {
			return nil, lr.errorf("ridge %d: negative generator", j)
		}
		vertices := ints[3:]
		for _, v := range vertices {
			if v < 0 || v > nv {
				return nil, lr.errorf("ridge %d: vertex %d out of range [0,%d]", j, v, nv)
			}
		}
		ridges[j] = Ridge{Generators: [2]int{g1, g2}, Vertices: vertices}
	}

	if _, err := lr.next("end of input"); err == nil {
		return nil, lr.errorf("unexpected content after %d ridges", nr)
	} else if _, ok := err.(*ParseError); !ok {
		return nil, err
	}

	return NewDiagram(finite, ridges), nil
}

// Encode writes d in the format read by Parse.
func Encode(w io.Writer, d *Diagram) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "3\n%d\n", d.NumberOfFiniteVertices())
	for _, v := range d.Vertices[min(1, len(d.Vertices)):] {
		fmt.Fprintf(bw, "%s %s %s\n", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
	}
	fmt.Fprintf(bw, "%d\n", len(d.Ridges))
	for _, r := range d.Ridges {
		fmt.Fprintf(bw, "%d %d %d", len(r.Vertices)+2, r.Generators[0], r.Generators[1])
		for _, v := range r.Vertices {
			fmt.Fprintf(bw, " %d", v)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

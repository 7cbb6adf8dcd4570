package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
)

// ReadOBJ decodes the vertex and face records of a Wavefront OBJ file.
// Face references may use the v/vt/vn forms and negative (relative) indices.
func ReadOBJ(r io.Reader) (*models.PolyData, error) {
	pd := &models.PolyData{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", line)
			}
			var c [3]float64
			for k := 0; k < 3; k++ {
				v, err := strconv.ParseFloat(fields[k+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				c[k] = v
			}
			pd.Points = append(pd.Points, r3.Vec{X: c[0], Y: c[1], Z: c[2]})

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", line)
			}
			poly := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				if i := strings.IndexByte(ref, '/'); i >= 0 {
					ref = ref[:i]
				}
				idx, err := strconv.Atoi(ref)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid vertex reference %q", line, ref)
				}
				switch {
				case idx > 0:
					idx--
				case idx < 0:
					idx += len(pd.Points)
				default:
					return nil, fmt.Errorf("line %d: vertex index 0 is not valid", line)
				}
				poly = append(poly, idx)
			}
			pd.Polys = append(pd.Polys, poly)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pd, nil
}

// WriteOBJ writes points and polygons. Polygons with fewer than three points
// cannot be expressed as OBJ faces and are skipped.
func WriteOBJ(w io.Writer, pd *models.PolyData) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# medialskel: %d points, %d cells\n", len(pd.Points), len(pd.Polys))
	for _, p := range pd.Points {
		fmt.Fprintf(bw, "v %s %s %s\n", formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z))
	}
	for _, poly := range pd.Polys {
		if len(poly) < 3 {
			continue
		}
		bw.WriteString("f")
		for _, id := range poly {
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(id + 1))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

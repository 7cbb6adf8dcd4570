package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
)

// Triangle is one STL facet
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// Triangulate fan-triangulates every polygon with at least three points into
// STL facets. Degenerate polygons are skipped.
func Triangulate(pd *models.PolyData) []Triangle {
	triangles := make([]Triangle, 0, len(pd.Polys))
	for _, poly := range pd.Polys {
		for k := 1; k+1 < len(poly); k++ {
			a, b, c := pd.Points[poly[0]], pd.Points[poly[k]], pd.Points[poly[k+1]]
			n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
			if norm := r3.Norm(n); norm > 0 {
				n = r3.Scale(1/norm, n)
			}
			triangles = append(triangles, Triangle{
				Normal:  toFloat32(n),
				Vertex1: toFloat32(a),
				Vertex2: toFloat32(b),
				Vertex3: toFloat32(c),
			})
		}
	}
	return triangles
}

func toFloat32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// WriteSTL writes binary STL: an 80 byte header, the triangle count and
// 50 bytes per triangle.
func WriteSTL(w io.Writer, triangles []Triangle) error {
	header := make([]byte, stlHeaderSize)
	copy(header, "medialskel binary STL")
	if _, err := w.Write(header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	buf := make([]byte, stlTriangleSize)
	for _, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(c))
				off += 4
			}
		}
		// attribute byte count
		buf[48], buf[49] = 0, 0
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// ReadSTL decodes binary or ASCII STL into a triangle soup. Vertices are not
// shared between facets; surface preprocessing welds them.
func ReadSTL(r io.Reader) (*models.PolyData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if isBinarySTL(data) {
		return readBinarySTL(data)
	}
	return readASCIISTL(data)
}

// isBinarySTL relies on the size implied by the triangle count, since binary
// headers may start with "solid" too.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	if int64(len(data)) == int64(stlHeaderSize+4)+int64(n)*stlTriangleSize {
		return true
	}
	return !bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid"))
}

func readBinarySTL(data []byte) (*models.PolyData, error) {
	n := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	body := data[stlHeaderSize+4:]
	if len(body) < n*stlTriangleSize {
		return nil, fmt.Errorf("truncated binary STL: %d triangles declared, %d bytes present", n, len(body))
	}

	pd := &models.PolyData{
		Points: make([]r3.Vec, 0, 3*n),
		Polys:  make([][]int, 0, n),
	}
	for i := 0; i < n; i++ {
		rec := body[i*stlTriangleSize:]
		poly := make([]int, 3)
		for k := 0; k < 3; k++ {
			off := 12 + 12*k
			v := r3.Vec{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+8:]))),
			}
			poly[k] = len(pd.Points)
			pd.Points = append(pd.Points, v)
		}
		pd.Polys = append(pd.Polys, poly)
	}
	return pd, nil
}

func readASCIISTL(data []byte) (*models.PolyData, error) {
	pd := &models.PolyData{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var facet []int
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "outer":
			facet = facet[:0]
		case "vertex":
			if len(fields) != 4 {
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
			facet = append(facet, len(pd.Points))
			pd.Points = append(pd.Points, r3.Vec{X: c[0], Y: c[1], Z: c[2]})
		case "endloop":
			if len(facet) < 3 {
				return nil, fmt.Errorf("line %d: facet with %d vertices", line, len(facet))
			}
			pd.Polys = append(pd.Polys, append([]int(nil), facet...))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(pd.Polys) == 0 {
		return nil, fmt.Errorf("no facets found in ASCII STL")
	}
	return pd, nil
}

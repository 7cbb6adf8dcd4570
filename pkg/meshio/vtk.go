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

const vtkValuesPerLine = 9

// WriteVTK writes legacy ASCII VTK polydata. Attribute arrays go into FIELD
// blocks so names may contain spaces ("Pruning Ratio" is stored as
// "Pruning%20Ratio", as VTK itself does).
func WriteVTK(w io.Writer, pd *models.PolyData, title string) error {
	bw := bufio.NewWriter(w)
	title = strings.ReplaceAll(title, "\n", " ")

	fmt.Fprintf(bw, "# vtk DataFile Version 4.2\n%s\nASCII\nDATASET POLYDATA\n", title)
	fmt.Fprintf(bw, "POINTS %d double\n", len(pd.Points))
	for _, p := range pd.Points {
		fmt.Fprintf(bw, "%s %s %s\n", formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z))
	}

	size := 0
	for _, poly := range pd.Polys {
		size += len(poly) + 1
	}
	fmt.Fprintf(bw, "POLYGONS %d %d\n", len(pd.Polys), size)
	for _, poly := range pd.Polys {
		bw.WriteString(strconv.Itoa(len(poly)))
		for _, id := range poly {
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(id))
		}
		bw.WriteByte('\n')
	}

	if len(pd.CellData) > 0 {
		fmt.Fprintf(bw, "CELL_DATA %d\n", len(pd.Polys))
		writeField(bw, pd.CellData)
	}
	if len(pd.PointData) > 0 {
		fmt.Fprintf(bw, "POINT_DATA %d\n", len(pd.Points))
		writeField(bw, pd.PointData)
	}
	return bw.Flush()
}

func writeField(bw *bufio.Writer, arrays models.Attributes) {
	fmt.Fprintf(bw, "FIELD FieldData %d\n", len(arrays))
	for _, a := range arrays {
		fmt.Fprintf(bw, "%s %d %d double\n", encodeName(a.Name), a.Components, a.Len())
		for i, v := range a.Values {
			bw.WriteString(formatFloat(v))
			if (i+1)%vtkValuesPerLine == 0 || i == len(a.Values)-1 {
				bw.WriteByte('\n')
			} else {
				bw.WriteByte(' ')
			}
		}
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// encodeName escapes whitespace and '%' the way vtkDataWriter does.
func encodeName(name string) string {
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c == '%' || c > '~' {
			fmt.Fprintf(&sb, "%%%02X", c)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func decodeName(name string) string {
	if !strings.Contains(name, "%") {
		return name
	}
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			if v, err := strconv.ParseUint(name[i+1:i+3], 16, 8); err == nil {
				sb.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		sb.WriteByte(name[i])
	}
	return sb.String()
}

// tokenizer is a whitespace tokenizer with one token of look-ahead.
type tokenizer struct {
	scanner *bufio.Scanner
	pending string
	hasPend bool
}

func newTokenizer(r io.Reader) *tokenizer {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	s.Split(bufio.ScanWords)
	return &tokenizer{scanner: s}
}

func (t *tokenizer) next() (string, bool) {
	if t.hasPend {
		t.hasPend = false
		return t.pending, true
	}
	if !t.scanner.Scan() {
		return "", false
	}
	return t.scanner.Text(), true
}

func (t *tokenizer) peek() (string, bool) {
	if !t.hasPend {
		tok, ok := t.next()
		if !ok {
			return "", false
		}
		t.pending, t.hasPend = tok, true
	}
	return t.pending, true
}

func (t *tokenizer) expect(what string) (string, error) {
	tok, ok := t.next()
	if !ok {
		if err := t.scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("unexpected end of file, expected %s", what)
	}
	return tok, nil
}

func (t *tokenizer) int(what string) (int, error) {
	tok, err := t.expect(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, tok)
	}
	return v, nil
}

func (t *tokenizer) floats(n int, what string) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		tok, err := t.expect(what)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q", what, tok)
		}
		out[i] = v
	}
	return out, nil
}

func (t *tokenizer) ints(n int, what string) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		v, err := t.int(what)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

var vtkSectionKeywords = map[string]bool{
	"POINTS": true, "VERTICES": true, "LINES": true, "POLYGONS": true,
	"TRIANGLE_STRIPS": true, "POINT_DATA": true, "CELL_DATA": true,
	"FIELD": true, "SCALARS": true, "VECTORS": true, "NORMALS": true,
}

// ReadVTK decodes legacy ASCII VTK polydata, both the classic cell layout and
// the OFFSETS/CONNECTIVITY layout of file version 5.1. Vertices and lines are
// skipped, triangle strips are split into triangles.
func ReadVTK(r io.Reader) (*models.PolyData, error) {
	br := bufio.NewReader(r)
	magic, err := br.ReadString('\n')
	if err != nil || !strings.HasPrefix(strings.TrimSpace(magic), "# vtk DataFile") {
		return nil, fmt.Errorf("not a legacy VTK file")
	}
	if _, err := br.ReadString('\n'); err != nil {
		return nil, fmt.Errorf("missing VTK title line")
	}

	t := newTokenizer(br)
	encoding, err := t.expect("file type")
	if err != nil {
		return nil, err
	}
	if strings.ToUpper(encoding) != "ASCII" {
		return nil, fmt.Errorf("%s VTK files are not supported", encoding)
	}
	if kw, err := t.expect("DATASET"); err != nil || strings.ToUpper(kw) != "DATASET" {
		return nil, fmt.Errorf("expected DATASET keyword")
	}
	if kind, err := t.expect("dataset type"); err != nil || strings.ToUpper(kind) != "POLYDATA" {
		return nil, fmt.Errorf("only POLYDATA datasets are supported")
	}

	pd := &models.PolyData{}
	var target *models.Attributes
	tuples := 0

	for {
		kw, ok := t.next()
		if !ok {
			break
		}
		switch strings.ToUpper(kw) {
		case "POINTS":
			n, err := t.int("point count")
			if err != nil {
				return nil, err
			}
			if _, err := t.expect("point type"); err != nil {
				return nil, err
			}
			coords, err := t.floats(3*n, "point")
			if err != nil {
				return nil, err
			}
			pd.Points = make([]r3.Vec, n)
			for i := range pd.Points {
				pd.Points[i] = r3.Vec{X: coords[3*i], Y: coords[3*i+1], Z: coords[3*i+2]}
			}

		case "VERTICES", "LINES":
			if _, err := readCells(t); err != nil {
				return nil, err
			}

		case "POLYGONS":
			cells, err := readCells(t)
			if err != nil {
				return nil, err
			}
			pd.Polys = append(pd.Polys, cells...)

		case "TRIANGLE_STRIPS":
			strips, err := readCells(t)
			if err != nil {
				return nil, err
			}
			for _, strip := range strips {
				for k := 0; k+2 < len(strip); k++ {
					if k%2 == 0 {
						pd.Polys = append(pd.Polys, []int{strip[k], strip[k+1], strip[k+2]})
					} else {
						pd.Polys = append(pd.Polys, []int{strip[k+1], strip[k], strip[k+2]})
					}
				}
			}

		case "POINT_DATA":
			if tuples, err = t.int("point data count"); err != nil {
				return nil, err
			}
			target = &pd.PointData

		case "CELL_DATA":
			if tuples, err = t.int("cell data count"); err != nil {
				return nil, err
			}
			target = &pd.CellData

		case "FIELD":
			// dataset level field data is read and dropped
			dest := target
			if dest == nil {
				dest = &models.Attributes{}
			}
			if err := readField(t, dest); err != nil {
				return nil, err
			}

		case "SCALARS":
			if target == nil {
				return nil, fmt.Errorf("SCALARS outside POINT_DATA or CELL_DATA")
			}
			if err := readScalars(t, target, tuples); err != nil {
				return nil, err
			}

		case "VECTORS", "NORMALS":
			if target == nil {
				return nil, fmt.Errorf("%s outside POINT_DATA or CELL_DATA", kw)
			}
			name, err := t.expect("array name")
			if err != nil {
				return nil, err
			}
			if _, err := t.expect("array type"); err != nil {
				return nil, err
			}
			values, err := t.floats(3*tuples, name)
			if err != nil {
				return nil, err
			}
			target.Set(&models.DataArray{Name: decodeName(name), Components: 3, Values: values})

		case "METADATA":
			skipToSection(t)

		default:
			return nil, fmt.Errorf("unsupported VTK keyword %q", kw)
		}
	}
	if err := t.scanner.Err(); err != nil {
		return nil, err
	}
	return pd, nil
}

// readCells reads a cell block in either legacy or OFFSETS/CONNECTIVITY form.
func readCells(t *tokenizer) ([][]int, error) {
	n, err := t.int("cell count")
	if err != nil {
		return nil, err
	}
	size, err := t.int("cell list size")
	if err != nil {
		return nil, err
	}

	if tok, ok := t.peek(); ok && strings.ToUpper(tok) == "OFFSETS" {
		t.next()
		if _, err := t.expect("offsets type"); err != nil {
			return nil, err
		}
		offsets, err := t.ints(n, "offset")
		if err != nil {
			return nil, err
		}
		if kw, err := t.expect("CONNECTIVITY"); err != nil || strings.ToUpper(kw) != "CONNECTIVITY" {
			return nil, fmt.Errorf("expected CONNECTIVITY after OFFSETS")
		}
		if _, err := t.expect("connectivity type"); err != nil {
			return nil, err
		}
		conn, err := t.ints(size, "connectivity")
		if err != nil {
			return nil, err
		}
		cells := make([][]int, 0, max(n-1, 0))
		for i := 0; i+1 < n; i++ {
			lo, hi := offsets[i], offsets[i+1]
			if lo < 0 || hi < lo || hi > len(conn) {
				return nil, fmt.Errorf("invalid cell offsets %d..%d", lo, hi)
			}
			cells = append(cells, append([]int(nil), conn[lo:hi]...))
		}
		return cells, nil
	}

	cells := make([][]int, 0, n)
	read := 0
	for i := 0; i < n; i++ {
		m, err := t.int("cell size")
		if err != nil {
			return nil, err
		}
		ids, err := t.ints(m, "cell point id")
		if err != nil {
			return nil, err
		}
		cells = append(cells, ids)
		read += m + 1
	}
	if read != size {
		return nil, fmt.Errorf("cell list size %d does not match %d values read", size, read)
	}
	return cells, nil
}

func readField(t *tokenizer, target *models.Attributes) error {
	if _, err := t.expect("field name"); err != nil {
		return err
	}
	count, err := t.int("field array count")
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		name, err := t.expect("array name")
		if err != nil {
			return err
		}
		if name == "NULL_ARRAY" {
			continue
		}
		comps, err := t.int("component count")
		if err != nil {
			return err
		}
		n, err := t.int("tuple count")
		if err != nil {
			return err
		}
		if _, err := t.expect("array type"); err != nil {
			return err
		}
		values, err := t.floats(comps*n, name)
		if err != nil {
			return err
		}
		target.Set(&models.DataArray{Name: decodeName(name), Components: comps, Values: values})
	}
	return nil
}

func readScalars(t *tokenizer, target *models.Attributes, tuples int) error {
	name, err := t.expect("array name")
	if err != nil {
		return err
	}
	if _, err := t.expect("array type"); err != nil {
		return err
	}
	comps := 1
	if tok, ok := t.peek(); ok && strings.ToUpper(tok) != "LOOKUP_TABLE" {
		if comps, err = t.int("component count"); err != nil {
			return err
		}
	}
	if tok, ok := t.peek(); ok && strings.ToUpper(tok) == "LOOKUP_TABLE" {
		t.next()
		if _, err := t.expect("lookup table name"); err != nil {
			return err
		}
	}
	values, err := t.floats(comps*tuples, name)
	if err != nil {
		return err
	}
	target.Set(&models.DataArray{Name: decodeName(name), Components: comps, Values: values})
	return nil
}

// skipToSection drops the body of a METADATA block, which ends at the next
// section keyword or at end of file.
func skipToSection(t *tokenizer) {
	for {
		tok, ok := t.peek()
		if !ok || vtkSectionKeywords[strings.ToUpper(tok)] {
			return
		}
		t.next()
	}
}

// Package meshio reads and writes polygonal surface meshes. It supports
// legacy ASCII VTK polydata (with point and cell data arrays), binary and
// ASCII STL, and Wavefront OBJ. The format is chosen from the file extension.
package meshio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"medialskel/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions no codec handles
var ErrUnsupportedFormat = errors.New("unsupported mesh format")

// Format identifies a mesh file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatVTK
	FormatSTL
	FormatOBJ
)

func (f Format) String() string {
	switch f {
	case FormatVTK:
		return "vtk"
	case FormatSTL:
		return "stl"
	case FormatOBJ:
		return "obj"
	default:
		return "unknown"
	}
}

// FormatOf returns the format matching the extension of path.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtk":
		return FormatVTK
	case ".stl":
		return FormatSTL
	case ".obj":
		return FormatOBJ
	default:
		return FormatUnknown
	}
}

// ReadFile loads a mesh from disk.
func ReadFile(path string) (*models.PolyData, error) {
	format := FormatOf(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	pd, err := Read(bufio.NewReader(file), format)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return pd, nil
}

// Read decodes a mesh of the given format.
func Read(r io.Reader, format Format) (*models.PolyData, error) {
	var (
		pd  *models.PolyData
		err error
	)
	switch format {
	case FormatVTK:
		pd, err = ReadVTK(r)
	case FormatSTL:
		pd, err = ReadSTL(r)
	case FormatOBJ:
		pd, err = ReadOBJ(r)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if err := pd.Validate(); err != nil {
		return nil, err
	}
	return pd, nil
}

// Write encodes a mesh in the given format.
func Write(w io.Writer, pd *models.PolyData, format Format) error {
	switch format {
	case FormatVTK:
		return WriteVTK(w, pd, "medialskel skeleton")
	case FormatSTL:
		return WriteSTL(w, Triangulate(pd))
	case FormatOBJ:
		return WriteOBJ(w, pd)
	default:
		return ErrUnsupportedFormat
	}
}

// WriteFile stores a mesh atomically: the data is written to a temporary file
// in the destination directory which is renamed over path only once complete.
// On failure no file is left at path.
func WriteFile(path string, pd *models.PolyData) error {
	format := FormatOf(path)
	if format == FormatUnknown {
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	return WriteAtomic(path, func(w io.Writer) error {
		if err := Write(w, pd, format); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		return nil
	})
}

// WriteAtomic writes a file through a temporary file in the same directory
// and renames it into place, so path is either fully written or untouched.
// The file gets mode 0644.
func WriteAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// CreateTemp opens with 0600
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	committed = true
	return nil
}

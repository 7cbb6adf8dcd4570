package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Names of the attribute arrays attached to a skeleton
const (
	RadiusArray       = "Radius"
	GeodesicArray     = "Geodesic"
	PruningRatioArray = "Pruning Ratio"
	NormalsArray      = "Normals"
)

// BoundingBox is an axis-aligned box. Containment is inclusive of the faces.
type BoundingBox struct {
	Min r3.Vec
	Max r3.Vec
}

// EmptyBox returns a box that contains nothing and grows with Extend.
func EmptyBox() BoundingBox {
	inf := math.Inf(1)
	return BoundingBox{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// BoundsOf returns the bounding box of a point set
func BoundsOf(points []r3.Vec) BoundingBox {
	b := EmptyBox()
	for _, p := range points {
		b = b.Extend(p)
	}
	return b
}

// Extend returns the smallest box containing b and p.
func (b BoundingBox) Extend(p r3.Vec) BoundingBox {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Min.Z = math.Min(b.Min.Z, p.Z)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
	b.Max.Z = math.Max(b.Max.Z, p.Z)
	return b
}

// IsEmpty reports whether the box has never been extended.
func (b BoundingBox) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Contains reports whether p lies inside the box or on its boundary.
func (b BoundingBox) Contains(p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Length returns the extent of the box along axis 0, 1 or 2.
func (b BoundingBox) Length(axis int) float64 {
	if b.IsEmpty() {
		return 0
	}
	switch axis {
	case 0:
		return b.Max.X - b.Min.X
	case 1:
		return b.Max.Y - b.Min.Y
	case 2:
		return b.Max.Z - b.Min.Z
	default:
		panic("illegal axis")
	}
}

// MaxLength returns the longest extent of the box.
func (b BoundingBox) MaxLength() float64 {
	return math.Max(b.Length(0), math.Max(b.Length(1), b.Length(2)))
}

// Diagonal returns the length of the box diagonal.
func (b BoundingBox) Diagonal() float64 {
	if b.IsEmpty() {
		return 0
	}
	return r3.Norm(r3.Sub(b.Max, b.Min))
}

// Center returns the box midpoint.
func (b BoundingBox) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// String formats the box the way the report prints it
func (b BoundingBox) String() string {
	return fmt.Sprintf("%f %f %f %f %f %f", b.Min.X, b.Max.X, b.Min.Y, b.Max.Y, b.Min.Z, b.Max.Z)
}

// DataArray is a named attribute array with a fixed number of components per tuple.
type DataArray struct {
	Name       string
	Components int
	Values     []float64
}

// Len returns the number of tuples in the array.
func (a *DataArray) Len() int {
	if a.Components <= 0 {
		return 0
	}
	return len(a.Values) / a.Components
}

// Tuple returns the components of tuple i.
func (a *DataArray) Tuple(i int) []float64 {
	return a.Values[i*a.Components : (i+1)*a.Components]
}

// Attributes is an ordered set of data arrays attached to points or cells.
type Attributes []*DataArray

// Get returns the array with the given name, or nil.
func (as Attributes) Get(name string) *DataArray {
	for _, a := range as {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Set adds the array, replacing any array with the same name.
func (as *Attributes) Set(a *DataArray) {
	for i, existing := range *as {
		if existing.Name == a.Name {
			(*as)[i] = a
			return
		}
	}
	*as = append(*as, a)
}

// Select returns a new attribute set holding only the listed tuples, in order.
func (as Attributes) Select(ids []int) Attributes {
	out := make(Attributes, 0, len(as))
	for _, a := range as {
		sel := &DataArray{Name: a.Name, Components: a.Components, Values: make([]float64, 0, len(ids)*a.Components)}
		for _, id := range ids {
			sel.Values = append(sel.Values, a.Tuple(id)...)
		}
		out = append(out, sel)
	}
	return out
}

// PolyData is a polygonal mesh with point and cell attributes. Polygons hold
// point indices and may have any number of vertices, including one or two for
// degenerate cells.
type PolyData struct {
	Points    []r3.Vec
	Polys     [][]int
	PointData Attributes
	CellData  Attributes
}

// NumberOfPoints returns the number of points.
func (pd *PolyData) NumberOfPoints() int {
	return len(pd.Points)
}

// NumberOfCells returns the number of polygons.
func (pd *PolyData) NumberOfCells() int {
	return len(pd.Polys)
}

// Bounds returns the bounding box of the points.
func (pd *PolyData) Bounds() BoundingBox {
	return BoundsOf(pd.Points)
}

// Validate checks that every polygon index and every attribute array is
// consistent with the point and cell counts.
func (pd *PolyData) Validate() error {
	for c, poly := range pd.Polys {
		for _, id := range poly {
			if id < 0 || id >= len(pd.Points) {
				return fmt.Errorf("cell %d references point %d, mesh has %d points", c, id, len(pd.Points))
			}
		}
	}
	for _, a := range pd.PointData {
		if a.Len() != len(pd.Points) || len(a.Values) != a.Len()*a.Components {
			return fmt.Errorf("point array %q has %d tuples, expected %d", a.Name, a.Len(), len(pd.Points))
		}
	}
	for _, a := range pd.CellData {
		if a.Len() != len(pd.Polys) || len(a.Values) != a.Len()*a.Components {
			return fmt.Errorf("cell array %q has %d tuples, expected %d", a.Name, a.Len(), len(pd.Polys))
		}
	}
	return nil
}

// Clone returns a deep copy.
func (pd *PolyData) Clone() *PolyData {
	out := &PolyData{
		Points: append([]r3.Vec(nil), pd.Points...),
		Polys:  make([][]int, len(pd.Polys)),
	}
	for i, poly := range pd.Polys {
		out.Polys[i] = append([]int(nil), poly...)
	}
	for _, a := range pd.PointData {
		out.PointData = append(out.PointData, &DataArray{Name: a.Name, Components: a.Components, Values: append([]float64(nil), a.Values...)})
	}
	for _, a := range pd.CellData {
		out.CellData = append(out.CellData, &DataArray{Name: a.Name, Components: a.Components, Values: append([]float64(nil), a.Values...)})
	}
	return out
}

// Package skeleton turns the Voronoi diagram of a closed surface into a pruned
// medial skeleton: vertices outside the surface are discarded, Voronoi faces
// are filtered by geodesic criteria and the result is cleaned up and
// simplified.
package skeleton

import (
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
	"medialskel/pkg/surface"
	"medialskel/pkg/voronoi"
)

// EnclosureTest decides whether a point lies inside a closed surface.
type EnclosureTest interface {
	IsInside(p r3.Vec) bool
}

// Classifier labels Voronoi vertices as interior or exterior. A vertex is
// interior when it lies in the bounding box and, if Tolerance is positive,
// passes the enclosure test. With a zero tolerance only the box is checked.
type Classifier struct {
	Bounds    models.BoundingBox
	Tolerance float64
	Enclosure EnclosureTest
}

// NewClassifier builds a classifier for mesh. The enclosure test is only
// prepared when tolerance is positive.
func NewClassifier(mesh *surface.Mesh, tolerance float64) *Classifier {
	c := &Classifier{Bounds: mesh.Bounds(), Tolerance: tolerance}
	if tolerance > 0 {
		c.Enclosure = surface.NewEnclosedPoints(mesh, tolerance)
	}
	return c
}

// IsInside classifies a single point.
func (c *Classifier) IsInside(p r3.Vec) bool {
	if !c.Bounds.Contains(p) {
		return false
	}
	if c.Tolerance > 0 && c.Enclosure != nil {
		return c.Enclosure.IsInside(p)
	}
	return true
}

// Classify returns one flag per diagram vertex. The point at infinity is
// always exterior.
func (c *Classifier) Classify(d *voronoi.Diagram) []bool {
	inside := make([]bool, len(d.Vertices))
	for i := range d.Vertices {
		if i == voronoi.Infinity {
			continue
		}
		inside[i] = c.IsInside(d.Vertices[i])
	}
	return inside
}

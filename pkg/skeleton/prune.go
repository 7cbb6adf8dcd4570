package skeleton

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/internal/models"
	"medialskel/pkg/geodesic"
	"medialskel/pkg/surface"
	"medialskel/pkg/voronoi"
)

// PruneReason says why a Voronoi face was discarded.
type PruneReason int

const (
	// Retained faces are kept
	Retained PruneReason = iota
	// PruneInfinite faces reach the point at infinity
	PruneInfinite
	// PruneOutside faces have a vertex outside the surface
	PruneOutside
	// PruneEdgeCount faces separate generators fewer than nDegrees edges apart
	PruneEdgeCount
	// PruneRatio faces have a geodesic to Euclidean ratio below xPrune
	PruneRatio
)

func (r PruneReason) String() string {
	switch r {
	case Retained:
		return "retained"
	case PruneInfinite:
		return "infinite"
	case PruneOutside:
		return "outside"
	case PruneEdgeCount:
		return "edge-count"
	case PruneRatio:
		return "ratio"
	default:
		return fmt.Sprintf("PruneReason(%d)", int(r))
	}
}

// PruneStats counts the faces per decision.
type PruneStats struct {
	Infinite  int
	Outside   int
	EdgeCount int
	Ratio     int
	Retained  int
}

func (s *PruneStats) add(r PruneReason) {
	switch r {
	case PruneInfinite:
		s.Infinite++
	case PruneOutside:
		s.Outside++
	case PruneEdgeCount:
		s.EdgeCount++
	case PruneRatio:
		s.Ratio++
	default:
		s.Retained++
	}
}

// Total returns the number of faces evaluated.
func (s PruneStats) Total() int {
	return s.Infinite + s.Outside + s.EdgeCount + s.Ratio + s.Retained
}

// Decision is the outcome for one face. Radius, Geodesic and Ratio are only
// meaningful for retained faces and faces pruned by ratio.
type Decision struct {
	Reason   PruneReason
	Radius   float64
	Geodesic float64
	Ratio    float64
}

// Pruner filters Voronoi faces using two distance engines over the boundary
// mesh: one counting edges and one summing edge lengths.
type Pruner struct {
	points   []r3.Vec
	edges    *geodesic.Engine
	geodesic *geodesic.Engine
	nDegrees float64
	xPrune   float64
}

// NewPruner builds the shared topology of mesh and both engines.
func NewPruner(mesh *surface.Mesh, nDegrees int, xPrune float64) (*Pruner, error) {
	topo, err := geodesic.NewTopology(mesh)
	if err != nil {
		return nil, fmt.Errorf("failed to build mesh graph: %w", err)
	}
	return &Pruner{
		points:   mesh.Points(),
		edges:    geodesic.NewEngine(topo.Weighted(geodesic.Unit)),
		geodesic: geodesic.NewEngine(topo.Weighted(geodesic.Euclidean)),
		nDegrees: float64(nDegrees),
		xPrune:   xPrune,
	}, nil
}

// Evaluate decides the fate of one face. inside holds the classifier flags
// of the diagram vertices.
func (p *Pruner) Evaluate(r voronoi.Ridge, inside []bool) Decision {
	if r.IsInfinite() {
		return Decision{Reason: PruneInfinite}
	}
	for _, v := range r.Vertices {
		if !inside[v] {
			return Decision{Reason: PruneOutside}
		}
	}

	g1, g2 := r.Generators[0], r.Generators[1]
	if p.edges.ComputeDistances(g1, p.nDegrees).VertexDistance(g2) < p.nDegrees {
		return Decision{Reason: PruneEdgeCount}
	}

	radius := r3.Norm(r3.Sub(p.points[g1], p.points[g2]))
	bound := radius*p.xPrune + 1
	geo := p.geodesic.ComputeDistances(g1, bound).VertexDistance(g2)
	d := Decision{Radius: radius, Geodesic: geo, Ratio: geo / radius}
	if radius == 0 || d.Ratio < p.xPrune {
		d.Reason = PruneRatio
		return d
	}
	d.Reason = Retained
	return d
}

// Prune evaluates every face in diagram order. The result holds every finite
// diagram vertex, renumbered without the point at infinity, and the retained
// faces with their Radius, Geodesic and Pruning Ratio cell arrays.
func (p *Pruner) Prune(d *voronoi.Diagram, inside []bool) (*models.PolyData, PruneStats) {
	var stats PruneStats
	pd := &models.PolyData{Points: append([]r3.Vec(nil), d.Vertices[1:]...)}
	radius := &models.DataArray{Name: models.RadiusArray, Components: 1}
	geo := &models.DataArray{Name: models.GeodesicArray, Components: 1}
	ratio := &models.DataArray{Name: models.PruningRatioArray, Components: 1}

	for _, r := range d.Ridges {
		dec := p.Evaluate(r, inside)
		stats.add(dec.Reason)
		if dec.Reason != Retained {
			continue
		}
		cell := make([]int, len(r.Vertices))
		for k, v := range r.Vertices {
			cell[k] = v - 1
		}
		pd.Polys = append(pd.Polys, cell)
		radius.Values = append(radius.Values, dec.Radius)
		geo.Values = append(geo.Values, dec.Geodesic)
		ratio.Values = append(ratio.Values, dec.Ratio)
	}

	pd.CellData.Set(radius)
	pd.CellData.Set(geo)
	pd.CellData.Set(ratio)
	return pd, stats
}

// Package spatial maps samples of one lap onto the equivalent points of a
// reference lap's path.
package spatial

import (
	"fmt"
	"sort"

	"github.com/okian/laptrace/internal/domain/telemetry"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// randoms bounds the median-of-randoms pivot sample while building the tree.
const randoms = 100

// point is a reference sample in the plane; dist and time ride along.
type point struct {
	x, y       float64
	dist, time float64
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p point) Dims() int { return 2 }

// Distance is the squared Euclidean distance, as kdtree expects.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p points) Pivot(d kdtree.Dim) int {
	pl := plane{Dim: d, points: p}
	return kdtree.Partition(pl, kdtree.MedianOfRandoms(pl, randoms))
}

type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.points[i].x < p.points[j].x
	}
	return p.points[i].y < p.points[j].y
}
func (p plane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}

// Index is a 2-D nearest-neighbour index over a reference lap's path.
type Index struct {
	tree *kdtree.Tree
	size int
}

// NewIndex builds the index. A path with fewer than two samples, or whose
// samples all share one position, is rejected with telemetry.ErrDegenerateLap.
func NewIndex(ref []telemetry.Sample) (*Index, error) {
	if len(ref) < telemetry.MinSamples {
		return nil, fmt.Errorf("index over %d samples: %w", len(ref), telemetry.ErrDegenerateLap)
	}
	pts := make(points, len(ref))
	distinct := false
	for i, s := range ref {
		pts[i] = point{x: s.X, y: s.Y, dist: s.Distance, time: s.Time}
		if s.X != ref[0].X || s.Y != ref[0].Y {
			distinct = true
		}
	}
	if !distinct {
		return nil, fmt.Errorf("index over duplicate positions: %w", telemetry.ErrDegenerateLap)
	}
	return &Index{tree: kdtree.New(pts, false), size: len(pts)}, nil
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return ix.size }

// nearest returns up to k indexed points closest to (x, y), nearest first.
func (ix *Index) nearest(x, y float64, k int) []point {
	keeper := kdtree.NewNKeeper(k)
	ix.tree.NearestSet(keeper, point{x: x, y: y})

	found := make([]kdtree.ComparableDist, 0, k)
	for _, c := range keeper.Heap {
		if c.Comparable != nil {
			found = append(found, c)
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].Dist < found[j].Dist })

	out := make([]point, len(found))
	for i, c := range found {
		out[i] = c.Comparable.(point)
	}
	return out
}

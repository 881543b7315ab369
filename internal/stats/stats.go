// Package stats summarizes the labels held in memory for a project.
package stats

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"labeltool/internal/classes"
	"labeltool/internal/label"
	"labeltool/pkg/geometry"
)

// Source is the read side of the label store.
type Source interface {
	Images() []string
	Get(imagePath string) []label.Label
}

// ClassStats aggregates one class.
type ClassStats struct {
	ClassID  int
	Name     string
	BBoxes   int
	Polygons int
	Masks    int
	Images   int // images with at least one label of this class

	AreaMean   float64 // pixel area of bounds over all labels
	AreaStdDev float64
	areas      []float64
}

// Total returns the number of labels of this class.
func (c ClassStats) Total() int { return c.BBoxes + c.Polygons + c.Masks }

// Summary is the dataset overview.
type Summary struct {
	Images     int // images known to the store
	Labelled   int // images with at least one label
	Labels     int
	Classes    []ClassStats // ordered by class id
	AreaMean   float64
	AreaStdDev float64
}

// Summarize walks every loaded image. Class names come from the table when
// possible, else from the label itself.
func Summarize(src Source, table classes.Lookup) Summary {
	var sum Summary
	byID := map[int]*ClassStats{}
	var all []float64

	for _, img := range src.Images() {
		sum.Images++
		labels := src.Get(img)
		if len(labels) == 0 {
			continue
		}
		sum.Labelled++
		seen := map[int]bool{}
		for _, l := range labels {
			cs, ok := byID[l.ClassID]
			if !ok {
				cs = &ClassStats{ClassID: l.ClassID, Name: l.ClassName}
				if table != nil {
					if name, ok := table.Name(l.ClassID); ok {
						cs.Name = name
					}
				}
				byID[l.ClassID] = cs
			}
			switch l.Kind {
			case label.KindBBox:
				cs.BBoxes++
			case label.KindPolygon:
				cs.Polygons++
			case label.KindMask:
				cs.Masks++
			}
			if !seen[l.ClassID] {
				seen[l.ClassID] = true
				cs.Images++
			}
			a := area(l)
			cs.areas = append(cs.areas, a)
			all = append(all, a)
			sum.Labels++
		}
	}

	for _, cs := range byID {
		cs.AreaMean, cs.AreaStdDev = meanStd(cs.areas)
		cs.areas = nil
		sum.Classes = append(sum.Classes, *cs)
	}
	sort.Slice(sum.Classes, func(i, j int) bool { return sum.Classes[i].ClassID < sum.Classes[j].ClassID })
	sum.AreaMean, sum.AreaStdDev = meanStd(all)
	return sum
}

func area(l label.Label) float64 {
	switch l.Kind {
	case label.KindPolygon:
		return geometry.PolygonArea(l.Points)
	case label.KindMask:
		if l.Mask != nil {
			return float64(l.Mask.Count())
		}
		return 0
	default:
		return l.Bounds().Area()
	}
}

func meanStd(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// Write prints a table of the summary.
func (s Summary) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "images\t%d\nlabelled\t%d\nlabels\t%d\n\n", s.Images, s.Labelled, s.Labels)
	fmt.Fprintln(tw, "id\tclass\tbbox\tpolygon\tmask\timages\tarea mean\tarea std")
	for _, c := range s.Classes {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%.1f\t%.1f\n",
			c.ClassID, c.Name, c.BBoxes, c.Polygons, c.Masks, c.Images, c.AreaMean, c.AreaStdDev)
	}
	return tw.Flush()
}

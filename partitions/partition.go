package partitions

import (
	"fmt"
	"math"

	"github.com/notargets/meshmotion/element"
)

// Partition represents the collection of elements owned by one rank
type Partition struct {
	// Unique identifier for this partition, equal to the owning rank
	ID int

	// Element membership
	Elements    []int // Global element indices in this partition
	NumElements int   // Actual number of elements
	MaxElements int   // Largest partition size across the layout

	// Mixed element support
	ElementTypes []element.GeometryType // Type of each element (for heterogeneous meshes)
	TypeGroups   []ElementGroup         // Grouped by element type
}

// ElementGroup represents elements of the same type within a partition
type ElementGroup struct {
	ElementType element.GeometryType
	Count       int   // Number of elements of this type
	NVp         int   // Vertices per element for this type
	LocalIDs    []int // Indices within the partition
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// NewLayout builds a layout from an element → partition assignment
func NewLayout(eToP []int, numPartitions int, types []element.GeometryType) (*PartitionLayout, error) {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{
			ID:           i,
			Elements:     make([]int, 0),
			ElementTypes: make([]element.GeometryType, 0),
		}
	}

	for elem, part := range eToP {
		if part < 0 || part >= numPartitions {
			return nil, fmt.Errorf("element %d assigned to invalid partition %d", elem, part)
		}
		partitions[part].Elements = append(partitions[part].Elements, elem)
		if types != nil {
			partitions[part].ElementTypes = append(partitions[part].ElementTypes, types[elem])
		}
		partitions[part].NumElements++
	}

	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
		partitions[i].TypeGroups = createElementGroups(&partitions[i])
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: len(eToP),
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// createElementGroups organizes elements by type within a partition, in the
// order types first appear
func createElementGroups(p *Partition) []ElementGroup {
	if len(p.ElementTypes) == 0 {
		return nil
	}

	var groups []ElementGroup
	index := make(map[element.GeometryType]int)
	for i, elemType := range p.ElementTypes {
		g, ok := index[elemType]
		if !ok {
			g = len(groups)
			index[elemType] = g
			groups = append(groups, ElementGroup{
				ElementType: elemType,
				NVp:         elemType.NVp(),
			})
		}
		groups[g].Count++
		groups[g].LocalIDs = append(groups[g].LocalIDs, i)
	}
	return groups
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if pl.NumPartitions != len(pl.Partitions) {
		return fmt.Errorf("NumPartitions %d != %d partitions", pl.NumPartitions, len(pl.Partitions))
	}

	// Verify KpartMax
	actualMax := 0
	total := 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		if p.NumElements != len(p.Elements) {
			return fmt.Errorf("partition %d: NumElements %d != %d listed elements",
				p.ID, p.NumElements, len(p.Elements))
		}
		for _, k := range p.Elements {
			if pl.GetPartition(k) != p.ID {
				return fmt.Errorf("partition %d lists element %d owned by partition %d",
					p.ID, k, pl.GetPartition(k))
			}
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}

	// Every element belongs to exactly one partition
	if total != pl.TotalElements || len(pl.EToP) != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, mesh has %d", total, pl.TotalElements)
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(pl.TotalElements) / float64(pl.NumPartitions),
	}

	for _, p := range pl.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}

	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}

package utils

import (
	"fmt"
)

// HaloConnector manages pick and place indices for the halo points of a
// partitioned mesh. Every point is owned by exactly one partition; any other
// partition holding a copy of it holds a halo copy that is refreshed from the
// owner.
type HaloConnector struct {
	NumPartitions int
	NumPoints     int // Total points in the global mesh

	// Input ownership
	PointOwner []int // Global point → owning partition

	// Partition mappings
	PointsPerPartition []int         // Local points (owned + halo) per partition
	GlobalToLocalPoint []map[int]int // [partition][globalPoint] → localPoint
	LocalToGlobalPoint [][]int       // [partition][localPoint] → globalPoint

	// Pick/Place indices per partition pair
	PickIndices  [][]PickBuffer  // [ownerPartition][haloPartition]
	PlaceIndices [][]PlaceBuffer // [haloPartition][ownerPartition]
}

// PickBuffer contains local point indices gathered on the owner for sending
type PickBuffer struct {
	Indices         []int
	TargetPartition int
}

// PlaceBuffer contains local point indices scattered on the receiver
type PlaceBuffer struct {
	Indices         []int
	SourcePartition int
}

// NewHaloConnector creates a halo connector from point ownership and the local
// point ordering of every partition
func NewHaloConnector(numPoints int, pointOwner []int, localToGlobal [][]int) (*HaloConnector, error) {
	if numPoints <= 0 {
		return nil, fmt.Errorf("invalid point count %d", numPoints)
	}
	if len(pointOwner) != numPoints {
		return nil, fmt.Errorf("pointOwner length %d does not match %d points", len(pointOwner), numPoints)
	}
	for gp, p := range pointOwner {
		if p < 0 || p >= len(localToGlobal) {
			return nil, fmt.Errorf("point %d owned by unknown partition %d", gp, p)
		}
	}

	hc := &HaloConnector{
		NumPartitions:      len(localToGlobal),
		NumPoints:          numPoints,
		PointOwner:         pointOwner,
		LocalToGlobalPoint: localToGlobal,
	}

	if err := hc.buildPartitionMappings(); err != nil {
		return nil, err
	}

	hc.initializeBuffers()

	if err := hc.BuildIndices(); err != nil {
		return nil, err
	}

	return hc, nil
}

// buildPartitionMappings creates the global → local lookups of every partition
func (hc *HaloConnector) buildPartitionMappings() error {
	hc.PointsPerPartition = make([]int, hc.NumPartitions)
	hc.GlobalToLocalPoint = make([]map[int]int, hc.NumPartitions)
	for p := 0; p < hc.NumPartitions; p++ {
		hc.PointsPerPartition[p] = len(hc.LocalToGlobalPoint[p])
		hc.GlobalToLocalPoint[p] = make(map[int]int, hc.PointsPerPartition[p])
		for local, global := range hc.LocalToGlobalPoint[p] {
			if global < 0 || global >= hc.NumPoints {
				return fmt.Errorf("partition %d: local point %d maps to invalid global point %d", p, local, global)
			}
			if _, dup := hc.GlobalToLocalPoint[p][global]; dup {
				return fmt.Errorf("partition %d: global point %d appears twice", p, global)
			}
			hc.GlobalToLocalPoint[p][global] = local
		}
	}
	return nil
}

// initializeBuffers creates empty pick and place buffer structures
func (hc *HaloConnector) initializeBuffers() {
	hc.PickIndices = make([][]PickBuffer, hc.NumPartitions)
	hc.PlaceIndices = make([][]PlaceBuffer, hc.NumPartitions)

	for p := 0; p < hc.NumPartitions; p++ {
		hc.PickIndices[p] = make([]PickBuffer, hc.NumPartitions)
		hc.PlaceIndices[p] = make([]PlaceBuffer, hc.NumPartitions)

		for q := 0; q < hc.NumPartitions; q++ {
			hc.PickIndices[p][q] = PickBuffer{
				Indices:         make([]int, 0),
				TargetPartition: q,
			}
			hc.PlaceIndices[p][q] = PlaceBuffer{
				Indices:         make([]int, 0),
				SourcePartition: q,
			}
		}
	}
}

// BuildIndices constructs pick and place indices for all partitions
func (hc *HaloConnector) BuildIndices() error {
	for p := 0; p < hc.NumPartitions; p++ {
		for localPoint, globalPoint := range hc.LocalToGlobalPoint[p] {
			owner := hc.PointOwner[globalPoint]
			if owner == p {
				continue
			}

			ownerLocal, found := hc.GlobalToLocalPoint[owner][globalPoint]
			if !found {
				return fmt.Errorf("point %d is a halo on partition %d but absent from its owner %d",
					globalPoint, p, owner)
			}

			// Owner sends this point to p; p places it at its own local slot
			hc.PickIndices[owner][p].Indices = append(hc.PickIndices[owner][p].Indices, ownerLocal)
			hc.PlaceIndices[p][owner].Indices = append(hc.PlaceIndices[p][owner].Indices, localPoint)
		}
	}

	return nil
}

// GetPickIndices returns pick indices for sending from owner to halo partition
func (hc *HaloConnector) GetPickIndices(sourcePartition, targetPartition int) []int {
	if sourcePartition < 0 || sourcePartition >= hc.NumPartitions ||
		targetPartition < 0 || targetPartition >= hc.NumPartitions {
		return nil
	}
	return hc.PickIndices[sourcePartition][targetPartition].Indices
}

// GetPlaceIndices returns place indices for the halo partition receiving from the owner
func (hc *HaloConnector) GetPlaceIndices(targetPartition, sourcePartition int) []int {
	if targetPartition < 0 || targetPartition >= hc.NumPartitions ||
		sourcePartition < 0 || sourcePartition >= hc.NumPartitions {
		return nil
	}
	return hc.PlaceIndices[targetPartition][sourcePartition].Indices
}

// HaloCount returns the number of halo points held by partition p
func (hc *HaloConnector) HaloCount(p int) int {
	n := 0
	for q := 0; q < hc.NumPartitions; q++ {
		n += len(hc.PlaceIndices[p][q].Indices)
	}
	return n
}

// Verify checks index validity and conservation properties
func (hc *HaloConnector) Verify() error {
	// Verify 1: Local validity - pick indices are in bounds and owned by the picker
	for p := 0; p < hc.NumPartitions; p++ {
		maxLocal := hc.PointsPerPartition[p]
		for q := 0; q < hc.NumPartitions; q++ {
			for _, idx := range hc.PickIndices[p][q].Indices {
				if idx < 0 || idx >= maxLocal {
					return fmt.Errorf("invalid pick index %d for partition %d (max %d)",
						idx, p, maxLocal-1)
				}
				if owner := hc.PointOwner[hc.LocalToGlobalPoint[p][idx]]; owner != p {
					return fmt.Errorf("partition %d picks point it does not own (owner %d)", p, owner)
				}
			}
		}
	}

	// Verify 2: Correspondence - pick and place arrays have same length
	for p := 0; p < hc.NumPartitions; p++ {
		for q := 0; q < hc.NumPartitions; q++ {
			pickLen := len(hc.PickIndices[p][q].Indices)
			placeLen := len(hc.PlaceIndices[q][p].Indices)
			if pickLen != placeLen {
				return fmt.Errorf("length mismatch: pick[%d][%d]=%d, place[%d][%d]=%d",
					p, q, pickLen, q, p, placeLen)
			}
		}
	}

	// Verify 3: Conservation - total pick operations equals total halo points
	totalPicks := 0
	for p := 0; p < hc.NumPartitions; p++ {
		for q := 0; q < hc.NumPartitions; q++ {
			totalPicks += len(hc.PickIndices[p][q].Indices)
		}
	}

	totalHalo := 0
	for p := 0; p < hc.NumPartitions; p++ {
		for _, gp := range hc.LocalToGlobalPoint[p] {
			if hc.PointOwner[gp] != p {
				totalHalo++
			}
		}
	}

	if totalPicks != totalHalo {
		return fmt.Errorf("conservation error: total picks %d != total halo points %d",
			totalPicks, totalHalo)
	}

	return nil
}

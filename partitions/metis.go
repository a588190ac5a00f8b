package partitions

import (
	"fmt"

	"github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/partitioner"
)

// MetisPartitioner partitions a gocfd mesh with METIS through gocfd's mesh
// partitioner
type MetisPartitioner struct {
	Mesh            *mesh.Mesh
	ImbalanceFactor float32 // Allowed load imbalance (0.05 = 5%)
	Objective       string  // "cut" or "vol"
}

// PartitionElements runs METIS and returns the element → partition map
func (mp *MetisPartitioner) PartitionElements(numPartitions int) ([]int, error) {
	if mp.Mesh == nil {
		return nil, fmt.Errorf("metis: no mesh")
	}
	objective := mp.Objective
	if objective == "" {
		objective = "vol"
	}

	config := &partitioner.PartitionConfig{
		NumPartitions:    int32(numPartitions),
		ImbalanceFactor:  float32(1.0) + mp.ImbalanceFactor,
		UseEdgeWeights:   true,
		UseVertexWeights: true,
		Objective:        objective,
	}

	partitioner := partitioner.NewMeshPartitioner(mp.Mesh, config)
	if err := partitioner.Partition(); err != nil {
		return nil, fmt.Errorf("metis: %w", err)
	}

	eToP := make([]int, mp.Mesh.NumElements)
	copy(eToP, mp.Mesh.EToP)
	return eToP, nil
}

package partitions

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/notargets/meshmotion/element"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	// Mesh connectivity
	Mesh *MeshConnectivity

	// Partitioning parameters
	NumPartitions       int // Number of ranks; derived from TargetPartitionSize when zero
	TargetPartitionSize int // Desired elements per partition
	Strategy            PartitionStrategy

	// Graph partitioner used by GraphPartition; nil falls back to SpaceFillingCurve
	Partitioner GraphPartitioner
}

// MeshConnectivity provides the mesh topology needed for partitioning
type MeshConnectivity struct {
	NumElements  int
	ElementTypes []element.GeometryType
	Centroids    [][]float64 // Element centroids, used by SpaceFillingCurve
}

// GraphPartitioner assigns elements to partitions from the mesh dual graph
type GraphPartitioner interface {
	PartitionElements(numPartitions int) ([]int, error)
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	// Graph-based strategies
	GraphPartition    // Use METIS
	SpaceFillingCurve // Morton curve ordering of element centroids
)

var strategyNames = map[PartitionStrategy]string{
	BlockPartition:    "block",
	RoundRobin:        "roundrobin",
	GraphPartition:    "graph",
	SpaceFillingCurve: "sfc",
}

func (s PartitionStrategy) String() string {
	if n, ok := strategyNames[s]; ok {
		return n
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// ParseStrategy maps a configuration name onto a strategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	if name == "" {
		return BlockPartition, nil
	}
	for s, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Mesh == nil || pb.Mesh.NumElements <= 0 {
		return nil, fmt.Errorf("no elements to partition")
	}

	// Determine number of partitions needed
	numPartitions := pb.calculateNumPartitions()

	// Partition the elements
	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}

	return NewLayout(eToP, numPartitions, pb.Mesh.ElementTypes)
}

// calculateNumPartitions determines the partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := pb.NumPartitions
	if numPartitions <= 0 && pb.TargetPartitionSize > 0 {
		numPartitions = int(math.Ceil(float64(pb.Mesh.NumElements) / float64(pb.TargetPartitionSize)))
	}

	// Ensure at least one partition
	if numPartitions < 1 {
		numPartitions = 1
	}

	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	eToP := make([]int, pb.Mesh.NumElements)

	switch pb.Strategy {
	case BlockPartition:
		blockAssign(eToP, identityOrder(pb.Mesh.NumElements), numPartitions)

	case RoundRobin:
		// Distribute elements cyclically
		for i := 0; i < pb.Mesh.NumElements; i++ {
			eToP[i] = i % numPartitions
		}

	case GraphPartition:
		if pb.Partitioner == nil || numPartitions == 1 {
			return pb.partitionWithStrategy(SpaceFillingCurve, numPartitions)
		}
		parts, err := pb.Partitioner.PartitionElements(numPartitions)
		if err != nil {
			return nil, fmt.Errorf("graph partitioning failed: %w", err)
		}
		if len(parts) != pb.Mesh.NumElements {
			return nil, fmt.Errorf("graph partitioner returned %d assignments for %d elements",
				len(parts), pb.Mesh.NumElements)
		}
		copy(eToP, parts)

	case SpaceFillingCurve:
		if len(pb.Mesh.Centroids) != pb.Mesh.NumElements {
			return pb.partitionWithStrategy(BlockPartition, numPartitions)
		}
		blockAssign(eToP, mortonOrder(pb.Mesh.Centroids), numPartitions)

	default:
		// Default to block partitioning
		return pb.partitionWithStrategy(BlockPartition, numPartitions)
	}

	return eToP, nil
}

// partitionWithStrategy recursively applies a different strategy
func (pb *PartitionBuilder) partitionWithStrategy(strategy PartitionStrategy, numPartitions int) ([]int, error) {
	oldStrategy := pb.Strategy
	pb.Strategy = strategy
	result, err := pb.partitionElements(numPartitions)
	pb.Strategy = oldStrategy
	return result, err
}

// blockAssign hands out consecutive runs of order to partitions, spreading the
// remainder over the first partitions so sizes differ by at most one
func blockAssign(eToP, order []int, numPartitions int) {
	n := len(order)
	base, extra := n/numPartitions, n%numPartitions
	pos := 0
	for p := 0; p < numPartitions; p++ {
		size := base
		if p < extra {
			size++
		}
		for i := 0; i < size; i++ {
			eToP[order[pos]] = p
			pos++
		}
	}
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// mortonOrder sorts elements along a Z-order curve through their centroids
func mortonOrder(centroids [][]float64) []int {
	const bits = 10
	dim := len(centroids[0])
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	for d := 0; d < dim; d++ {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	for _, c := range centroids {
		for d := 0; d < dim; d++ {
			lo[d] = math.Min(lo[d], c[d])
			hi[d] = math.Max(hi[d], c[d])
		}
	}

	keys := make([]uint64, len(centroids))
	for k, c := range centroids {
		var key uint64
		for b := bits - 1; b >= 0; b-- {
			for d := 0; d < dim; d++ {
				span := hi[d] - lo[d]
				var q uint64
				if span > 0 {
					q = uint64((c[d] - lo[d]) / span * float64((1<<bits)-1))
				}
				key = key<<1 | (q>>uint(b))&1
			}
		}
		keys[k] = key
	}

	order := identityOrder(len(centroids))
	sort.SliceStable(order, func(i, j int) bool { return keys[order[i]] < keys[order[j]] })
	return order
}

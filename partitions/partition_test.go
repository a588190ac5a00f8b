package partitions

import (
	"errors"
	"testing"

	"github.com/notargets/meshmotion/element"
)

func TestBuildPartitions_Block(t *testing.T) {
	pb := &PartitionBuilder{
		Mesh:          &MeshConnectivity{NumElements: 10},
		NumPartitions: 3,
		Strategy:      BlockPartition,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		t.Fatalf("Failed to build partitions: %v", err)
	}

	// Test 1: sizes differ by at most one
	want := []int{4, 3, 3}
	for p, n := range want {
		if layout.Partitions[p].NumElements != n {
			t.Errorf("Partition %d: expected %d elements, got %d", p, n, layout.Partitions[p].NumElements)
		}
	}

	// Test 2: consecutive elements stay together
	if layout.GetPartition(3) != 0 || layout.GetPartition(4) != 1 || layout.GetPartition(9) != 2 {
		t.Errorf("Unexpected block assignment %v", layout.EToP)
	}
	if layout.KpartMax != 4 {
		t.Errorf("Expected KpartMax=4, got %d", layout.KpartMax)
	}
	if layout.GetPartition(-1) != -1 || layout.GetPartition(10) != -1 {
		t.Errorf("Out of range element should map to -1")
	}
}

func TestBuildPartitions_RoundRobin(t *testing.T) {
	pb := &PartitionBuilder{
		Mesh:          &MeshConnectivity{NumElements: 7},
		NumPartitions: 2,
		Strategy:      RoundRobin,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		t.Fatalf("Failed to build partitions: %v", err)
	}
	for k := 0; k < 7; k++ {
		if layout.GetPartition(k) != k%2 {
			t.Errorf("Element %d: expected partition %d, got %d", k, k%2, layout.GetPartition(k))
		}
	}
}

func TestBuildPartitions_SpaceFillingCurve(t *testing.T) {
	// Four elements on a line listed out of spatial order
	centroids := [][]float64{{3, 0}, {0, 0}, {2, 0}, {1, 0}}
	pb := &PartitionBuilder{
		Mesh: &MeshConnectivity{
			NumElements: 4,
			Centroids:   centroids,
		},
		NumPartitions: 2,
		Strategy:      SpaceFillingCurve,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		t.Fatalf("Failed to build partitions: %v", err)
	}
	// The two left-most elements (1 and 3) share a partition
	if layout.GetPartition(1) != layout.GetPartition(3) {
		t.Errorf("Spatially adjacent elements split: %v", layout.EToP)
	}
	if layout.GetPartition(0) != layout.GetPartition(2) {
		t.Errorf("Spatially adjacent elements split: %v", layout.EToP)
	}
}

type fixedPartitioner struct {
	parts []int
	err   error
}

func (f fixedPartitioner) PartitionElements(int) ([]int, error) { return f.parts, f.err }

func TestBuildPartitions_Graph(t *testing.T) {
	types := []element.GeometryType{element.Tet, element.Hex, element.Tet}
	pb := &PartitionBuilder{
		Mesh:          &MeshConnectivity{NumElements: 3, ElementTypes: types},
		NumPartitions: 2,
		Strategy:      GraphPartition,
		Partitioner:   fixedPartitioner{parts: []int{1, 0, 1}},
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		t.Fatalf("Failed to build partitions: %v", err)
	}
	p1 := layout.Partitions[1]
	if p1.NumElements != 2 || len(p1.TypeGroups) != 1 || p1.TypeGroups[0].NVp != 4 {
		t.Errorf("Unexpected partition 1 %+v", p1)
	}

	// Partitioner failures propagate
	pb.Partitioner = fixedPartitioner{err: errors.New("metis failed")}
	if _, err := pb.BuildPartitions(); err == nil {
		t.Errorf("Expected partitioner error")
	}

	// Invalid assignments are rejected by the layout
	pb.Partitioner = fixedPartitioner{parts: []int{0, 5, 1}}
	if _, err := pb.BuildPartitions(); err == nil {
		t.Errorf("Expected invalid partition error")
	}
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"block", "RoundRobin", "graph", "sfc", ""} {
		if _, err := ParseStrategy(name); err != nil {
			t.Errorf("ParseStrategy(%q): %v", name, err)
		}
	}
	if _, err := ParseStrategy("hilbert"); err == nil {
		t.Errorf("Expected error for unknown strategy")
	}
}

func TestValidateLayout_DetectsInconsistency(t *testing.T) {
	layout, err := NewLayout([]int{0, 0, 1}, 2, nil)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	layout.Partitions[1].Elements = []int{0}
	if err := layout.ValidateLayout(); err == nil {
		t.Errorf("Expected validation failure for misplaced element")
	}

	stats := layout.PartitionStatistics()
	if stats.MaxElements != 2 || stats.MinElements != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

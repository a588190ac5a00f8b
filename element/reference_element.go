package element

// Node numbering follows the SU2/VTK conventions. Face lists are local vertex
// indices; their orientation is not relied upon (outward normals are resolved
// against the owning element's centroid).
var faceTable = map[GeometryType][][]int{
	Line: {{0}, {1}},
	Tri:  {{0, 1}, {1, 2}, {2, 0}},
	Quad: {{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	Tet:  {{0, 1, 3}, {1, 2, 3}, {2, 0, 3}, {0, 2, 1}},
	Hex: {
		{0, 3, 2, 1}, {4, 5, 6, 7},
		{0, 1, 5, 4}, {1, 2, 6, 5}, {2, 3, 7, 6}, {3, 0, 4, 7},
	},
	Prism: {
		{0, 1, 2}, {3, 4, 5},
		{0, 1, 4, 3}, {1, 2, 5, 4}, {2, 0, 3, 5},
	},
	Pyramid: {
		{0, 3, 2, 1},
		{0, 1, 4}, {1, 2, 4}, {2, 3, 4}, {3, 0, 4},
	},
}

// simplexTable splits every element into simplices sharing the element's
// orientation. Quads use both diagonals so the split is symmetric; the
// weights in simplexWeights compensate.
var simplexTable = map[GeometryType][][]int{
	Line: {{0, 1}},
	Tri:  {{0, 1, 2}},
	Quad: {{0, 1, 2}, {0, 2, 3}, {1, 2, 3}, {1, 3, 0}},
	Tet:  {{0, 1, 2, 3}},
	Hex: {
		{0, 1, 2, 6}, {0, 2, 3, 6}, {0, 3, 7, 6},
		{0, 7, 4, 6}, {0, 4, 5, 6}, {0, 5, 1, 6},
	},
	Prism:   {{0, 1, 2, 3}, {1, 2, 3, 4}, {2, 3, 4, 5}},
	Pyramid: {{0, 1, 2, 4}, {0, 2, 3, 4}},
}

var simplexWeights = map[GeometryType]float64{
	Quad: 0.5,
}

// cornerTable lists, for each element corner, the simplex spanned by the
// corner and its edge neighbours. The determinant of each is the corner
// Jacobian used for validity checks.
var cornerTable = map[GeometryType][][]int{
	Line: {{0, 1}},
	Tri:  {{0, 1, 2}},
	Quad: {{0, 1, 3}, {1, 2, 0}, {2, 3, 1}, {3, 0, 2}},
	Tet:  {{0, 1, 2, 3}},
	Hex: {
		{0, 1, 3, 4}, {1, 2, 0, 5}, {2, 3, 1, 6}, {3, 0, 2, 7},
		{4, 7, 5, 0}, {5, 4, 6, 1}, {6, 5, 7, 2}, {7, 6, 4, 3},
	},
	Prism: {
		{0, 1, 2, 3}, {1, 2, 0, 4}, {2, 0, 1, 5},
		{3, 5, 4, 0}, {4, 3, 5, 1}, {5, 4, 3, 2},
	},
	Pyramid: {{0, 1, 3, 4}, {1, 2, 0, 4}, {2, 3, 1, 4}, {3, 0, 2, 4}},
}

// Faces returns the local vertex lists of each face of g
func (g GeometryType) Faces() [][]int {
	return faceTable[g]
}

// FaceType returns the element type of face f of g
func (g GeometryType) FaceType(f int) GeometryType {
	switch len(faceTable[g][f]) {
	case 2:
		return Line
	case 3:
		return Tri
	}
	return Quad
}

// Simplices returns the simplex decomposition of g and the weight of each simplex
func (g GeometryType) Simplices() ([][]int, float64) {
	w, ok := simplexWeights[g]
	if !ok {
		w = 1
	}
	return simplexTable[g], w
}

// CornerSimplices returns the corner simplices of g
func (g GeometryType) CornerSimplices() [][]int {
	return cornerTable[g]
}

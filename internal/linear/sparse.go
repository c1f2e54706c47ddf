// Package linear holds the sparse vector type shared by both featurizers and
// the logistic decision functions that score those vectors.
package linear

import (
	"math"
	"sort"
)

// SparseVector is a vector of dimension Dim whose non-zero entries are listed
// in Indices (strictly ascending) with matching Values.
type SparseVector struct {
	Indices []int
	Values  []float64
	Dim     int
}

// FromCounts builds a SparseVector from an index→value map. Entries are
// emitted in ascending index order so every reduction over the vector sums
// in the same order on every call.
func FromCounts(counts map[int]float64, dim int) SparseVector {
	sv := SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
		Dim:     dim,
	}
	for idx := range counts {
		sv.Indices = append(sv.Indices, idx)
	}
	sort.Ints(sv.Indices)
	for _, idx := range sv.Indices {
		sv.Values = append(sv.Values, counts[idx])
	}
	return sv
}

// Nnz returns the number of stored entries.
func (sv SparseVector) Nnz() int {
	return len(sv.Indices)
}

// IsZero reports whether every stored value is zero.
func (sv SparseVector) IsZero() bool {
	for _, v := range sv.Values {
		if v != 0 {
			return false
		}
	}
	return true
}

// Dot computes the dot product with a dense vector. Indices beyond the dense
// length contribute nothing.
func (sv SparseVector) Dot(dense []float64) float64 {
	var sum float64
	for i, idx := range sv.Indices {
		if idx < len(dense) {
			sum += sv.Values[i] * dense[idx]
		}
	}
	return sum
}

// L2Norm returns the Euclidean norm.
func (sv SparseVector) L2Norm() float64 {
	var sum float64
	for _, v := range sv.Values {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// L1Norm returns the sum of absolute values.
func (sv SparseVector) L1Norm() float64 {
	var sum float64
	for _, v := range sv.Values {
		sum += math.Abs(v)
	}
	return sum
}

// Scale divides every value by norm in place. A zero norm is a no-op.
func (sv SparseVector) Scale(norm float64) {
	if norm == 0 {
		return
	}
	for i := range sv.Values {
		sv.Values[i] /= norm
	}
}

// ToDense expands the vector to a dense slice of length Dim.
func (sv SparseVector) ToDense() []float64 {
	dense := make([]float64, sv.Dim)
	for i, idx := range sv.Indices {
		if idx < sv.Dim {
			dense[idx] = sv.Values[i]
		}
	}
	return dense
}

// Get returns the value stored at idx, or zero.
func (sv SparseVector) Get(idx int) float64 {
	pos := sort.SearchInts(sv.Indices, idx)
	if pos < len(sv.Indices) && sv.Indices[pos] == idx {
		return sv.Values[pos]
	}
	return 0
}

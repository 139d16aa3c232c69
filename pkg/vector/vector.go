// Package vector defines the fixed-dimension floating-point point type the
// rest of the service indexes and searches on.
package vector

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
)

// Vector is a fixed-dimension embedding. Construct one with New, which
// validates length; a zero-value Vector is never passed across a
// parse/build boundary without that check.
type Vector []float32

// New validates that values has exactly dim entries and returns it as a
// Vector. It does not copy values.
func New(values []float32, dim int) (Vector, error) {
	if len(values) != dim {
		return nil, apperr.Wrap("vector.New", apperr.ErrBadDimension,
			fmt.Errorf("got %d values, want %d", len(values), dim))
	}
	return Vector(values), nil
}

// Dimension returns len(v).
func (v Vector) Dimension() int { return len(v) }

// Distance computes the Euclidean (L2) distance between a and b. The two
// must already be known to share a dimension; Distance does not validate
// length and reads b at every index of a, so it panics with an index out
// of range if b is shorter than a, matching the reference's unchecked hot
// path. NaN anywhere in either
// operand propagates to a NaN result with no short-circuit.
func Distance(a, b Vector) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// MarshalJSON encodes the vector as a plain ordered array of floats.
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float32(v))
}

// ParseJSON decodes data as a plain float array and validates its length
// against dim. It also accepts the historical doubly-wrapped form
// ([[f]] instead of [f]) by unwrapping a single-element outer array,
// since some on-disk records predate the unwrapped convention.
func ParseJSON(data []byte, dim int) (Vector, error) {
	var flat []float32
	if err := json.Unmarshal(data, &flat); err == nil {
		return New(flat, dim)
	}

	var nested [][]float32
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, apperr.Wrap("vector.ParseJSON", apperr.ErrCorrupt, err)
	}
	if len(nested) != 1 {
		return nil, apperr.Wrap("vector.ParseJSON", apperr.ErrCorrupt,
			fmt.Errorf("expected a single-element wrapped vector, got %d elements", len(nested)))
	}
	return New(nested[0], dim)
}

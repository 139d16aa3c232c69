package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
)

func TestNewRejectsWrongDimension(t *testing.T) {
	if _, err := New([]float32{1, 2, 3}, 4); !errors.Is(err, apperr.ErrBadDimension) {
		t.Fatalf("expected ErrBadDimension, got %v", err)
	}
}

func TestDistanceIdentical(t *testing.T) {
	a, _ := New([]float32{1, 2, 3, 4}, 4)
	b, _ := New([]float32{1, 2, 3, 4}, 4)
	if d := Distance(a, b); d != 0 {
		t.Fatalf("expected 0 distance, got %v", d)
	}
}

func TestDistanceKnown(t *testing.T) {
	a, _ := New([]float32{0, 0}, 2)
	b, _ := New([]float32{3, 4}, 2)
	if d := Distance(a, b); d != 5 {
		t.Fatalf("expected 5, got %v", d)
	}
}

func TestDistanceNaNPropagates(t *testing.T) {
	a := Vector{float32(math.NaN()), 0}
	b := Vector{0, 0}
	if d := Distance(a, b); !math.IsNaN(float64(d)) {
		t.Fatalf("expected NaN, got %v", d)
	}
}

func TestParseJSONUnwrapped(t *testing.T) {
	v, err := ParseJSON([]byte(`[1,2,3,4]`), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 4 {
		t.Fatalf("expected length 4, got %d", len(v))
	}
}

func TestParseJSONWrappedLegacy(t *testing.T) {
	v, err := ParseJSON([]byte(`[[1,2,3,4]]`), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 4 {
		t.Fatalf("expected length 4, got %d", len(v))
	}
}

func TestParseJSONWrongDimension(t *testing.T) {
	if _, err := ParseJSON([]byte(`[1,2]`), 4); !errors.Is(err, apperr.ErrBadDimension) {
		t.Fatalf("expected ErrBadDimension, got %v", err)
	}
}

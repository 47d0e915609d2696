package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Tick(t *testing.T) {
	// Arrange
	c := New()

	// Act
	c1 := c.Tick("client-a")
	c2 := c1.Tick("client-a")
	c3 := c2.Tick("client-b")

	// Assert
	assert.Equal(t, uint64(0), c["client-a"], "Tick must not mutate the receiver")
	assert.Equal(t, uint64(1), c1["client-a"])
	assert.Equal(t, uint64(2), c2["client-a"])
	assert.Equal(t, uint64(2), c3["client-a"])
	assert.Equal(t, uint64(1), c3["client-b"])
}

func TestClock_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b Clock
		want Relation
	}{
		{"empty clocks are equal", Clock{}, Clock{}, Equal},
		{"identical clocks are equal", Clock{"x": 2, "y": 1}, Clock{"x": 2, "y": 1}, Equal},
		{"dominated clock is before", Clock{"x": 1}, Clock{"x": 2}, Before},
		{"dominating clock is after", Clock{"x": 2, "y": 1}, Clock{"x": 1, "y": 1}, After},
		{"missing key counts as zero", Clock{}, Clock{"x": 1}, Before},
		{"zero-valued key does not dominate", Clock{"x": 0}, Clock{}, Equal},
		{"disjoint keys are concurrent", Clock{"x": 1}, Clock{"y": 1}, Concurrent},
		{"crossed counters are concurrent", Clock{"x": 2, "y": 1}, Clock{"x": 1, "y": 2}, Concurrent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

func TestClock_Compare_Antisymmetry(t *testing.T) {
	pairs := []struct{ a, b Clock }{
		{Clock{"x": 1}, Clock{"x": 2}},
		{Clock{"x": 1, "y": 3}, Clock{"x": 1, "y": 3, "z": 1}},
		{Clock{}, Clock{"x": 5}},
	}

	for _, p := range pairs {
		assert.Equal(t, Before, p.a.Compare(p.b))
		assert.Equal(t, After, p.b.Compare(p.a))
	}
}

func TestClock_Merge_Commutative(t *testing.T) {
	a := Clock{"x": 3, "y": 1}
	b := Clock{"y": 4, "z": 2}

	ab := a.Merge(b)
	ba := b.Merge(a)

	assert.True(t, ab.Equal(ba))
	assert.Equal(t, Clock{"x": 3, "y": 4, "z": 2}, ab)
}

func TestClock_Merge_Idempotent(t *testing.T) {
	a := Clock{"x": 3, "y": 1}

	assert.Equal(t, a, a.Merge(a))
	assert.Equal(t, a, a.Merge(Clock{}))
}

func TestClock_CausallyReady(t *testing.T) {
	current := Clock{"x": 2, "y": 1}

	assert.True(t, Clock{"x": 1}.CausallyReady(current), "older clock is ready")
	assert.True(t, current.Copy().CausallyReady(current), "equal clock is ready")
	assert.False(t, Clock{"x": 3}.CausallyReady(current), "newer clock is not ready")
	assert.False(t, Clock{"z": 1}.CausallyReady(current), "concurrent clock is not strictly ready")
}

func TestClock_Clients(t *testing.T) {
	c := Clock{"b": 1, "a": 2, "c": 3}

	assert.Equal(t, []string{"a", "b", "c"}, c.Clients())
}

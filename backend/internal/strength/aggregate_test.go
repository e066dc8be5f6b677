package strength

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_TwoPapers(t *testing.T) {
	var a Aggregate
	a.Apply("p1", 0.6)
	a.Apply("p2", 0.8)

	assert.Equal(t, 2, a.Count)
	assert.InDelta(t, 0.7, a.Avg(), 1e-9)
	assert.Equal(t, 0.8, a.Max)
	assert.Equal(t, 0.6, a.Min)
	assert.InDelta(t, 0.1, a.StdDev(), 1e-9)
	assert.Equal(t, []string{"p1", "p2"}, a.PaperIDs)
}

func TestAggregate_ReapplyIsIdempotent(t *testing.T) {
	var a Aggregate
	a.Apply("p1", 0.6)
	a.Apply("p2", 0.8)
	a.Apply("p2", 0.8)

	assert.Equal(t, 2, a.Count)
	assert.InDelta(t, 1.4, a.Sum, 1e-9)
}

func TestAggregate_ReplacesPreviousContribution(t *testing.T) {
	var a Aggregate
	a.Apply("p1", 0.6)
	a.Apply("p2", 0.8)
	a.Apply("p1", 0.9)

	assert.Equal(t, 2, a.Count)
	assert.InDelta(t, 0.85, a.Avg(), 1e-9)
	assert.Equal(t, 0.8, a.Min)
	assert.Equal(t, 0.9, a.Max)
}

func TestAggregate_Empty(t *testing.T) {
	var a Aggregate
	assert.Equal(t, 0.0, a.Avg())
	assert.Equal(t, 0.0, a.StdDev())
}

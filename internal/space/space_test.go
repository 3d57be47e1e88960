package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpaceRoundTrip(t *testing.T) {
	sp := NewSpace()
	a, err := ParseDimension("a~uniform(0,1)")
	require.NoError(t, err)
	b, err := ParseDimension("b~choices('x','y')")
	require.NoError(t, err)
	require.NoError(t, sp.Add(a))
	require.NoError(t, sp.Add(b))

	parsed, err := ParseSpace(sp.String())
	require.NoError(t, err)
	assert.Equal(t, sp.Names(), parsed.Names())
	assert.Equal(t, sp.String(), parsed.String())
}

func TestSpaceDuplicateName(t *testing.T) {
	sp := NewSpace()
	a, _ := ParseDimension("a~uniform(0,1)")
	a2, _ := ParseDimension("a~uniform(0,2)")
	require.NoError(t, sp.Add(a))
	err := sp.Add(a2)
	assert.Error(t, err)
}

func TestSpaceContains(t *testing.T) {
	sp := NewSpace()
	a, _ := ParseDimension("a~uniform(0,1)")
	require.NoError(t, sp.Add(a))

	assert.True(t, sp.Contains([]Param{{Name: "a", Value: Value{Kind: KindReal, F: 0.4}}}))
	assert.False(t, sp.Contains([]Param{{Name: "a", Value: Value{Kind: KindReal, F: 4}}}))
	assert.False(t, sp.Contains(nil))
}

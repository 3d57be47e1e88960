package evc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/trial"
)

func TestDimensionRenamingForward(t *testing.T) {
	a := DimensionRenaming{Old: "a", New: "b"}
	tr := &trial.Trial{Params: []space.Param{{Name: "a", Value: space.Value{Kind: space.KindReal, F: 0.5}}}}

	out, ok := a.Forward(tr)
	require.True(t, ok)
	assert.Equal(t, "b", out.Params[0].Name)
	assert.Equal(t, 0.5, out.Params[0].Value.F)

	back, ok := a.Backward(out)
	require.True(t, ok)
	assert.Equal(t, tr.Params, back.Params)
}

func TestDimensionAdditionRoundTrip(t *testing.T) {
	a := DimensionAddition{Name: "new", Default: space.Value{Kind: space.KindReal, F: 1}}
	tr := &trial.Trial{Params: []space.Param{{Name: "old", Value: space.Value{Kind: space.KindReal, F: 2}}}}

	fwd, ok := a.Forward(tr)
	require.True(t, ok)
	require.Len(t, fwd.Params, 2)

	back, ok := a.Backward(fwd)
	require.True(t, ok)
	assert.Equal(t, tr.Params, back.Params)
}

func TestDimensionPriorChangeFilters(t *testing.T) {
	oldDim, _ := space.ParseDimension("a~uniform(0,1)")
	newDim, _ := space.ParseDimension("a~uniform(0,10)")
	a := DimensionPriorChange{Name: "a", OldPrior: oldDim, NewPrior: newDim}

	inRange := &trial.Trial{Params: []space.Param{{Name: "a", Value: space.Value{Kind: space.KindReal, F: 5}}}}
	_, ok := a.Forward(inRange)
	assert.True(t, ok)

	outOfRange := &trial.Trial{Params: []space.Param{{Name: "a", Value: space.Value{Kind: space.KindReal, F: 0.5}}}}
	_, ok = a.Forward(outOfRange)
	assert.True(t, ok) // 0.5 is within both [0,1] and [0,10]

	tooHighForOld := &trial.Trial{Params: []space.Param{{Name: "a", Value: space.Value{Kind: space.KindReal, F: 8}}}}
	adapted, ok := a.Backward(tooHighForOld)
	assert.False(t, ok)
	assert.Nil(t, adapted)
}

func TestMetadataChangeBreakDropsForward(t *testing.T) {
	a := MetadataChange{Kind: ChangeKindCode, Type: ChangeBreak}
	tr := &trial.Trial{}
	_, ok := a.Forward(tr)
	assert.False(t, ok)

	back, ok := a.Backward(tr)
	assert.True(t, ok)
	assert.NotNil(t, back)
}

func TestMetadataChangeNoEffectIsIdentity(t *testing.T) {
	a := MetadataChange{Kind: ChangeKindCommandLine, Type: ChangeNoEffect}
	tr := &trial.Trial{Params: []space.Param{{Name: "a", Value: space.Value{Kind: space.KindReal, F: 1}}}}
	fwd, ok := a.Forward(tr)
	require.True(t, ok)
	assert.Equal(t, tr.Params, fwd.Params)
}

func TestChainForwardBackwardLaw(t *testing.T) {
	chain := Chain{
		DimensionRenaming{Old: "a", New: "b"},
		DimensionAddition{Name: "c", Default: space.Value{Kind: space.KindReal, F: 3}},
	}
	tr := &trial.Trial{Params: []space.Param{{Name: "a", Value: space.Value{Kind: space.KindReal, F: 1}}}}

	fwd, ok := chain.Forward(tr)
	require.True(t, ok)
	back, ok := chain.Backward(fwd)
	require.True(t, ok)
	assert.Equal(t, tr.Params, back.Params)
}

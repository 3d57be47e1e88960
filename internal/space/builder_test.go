package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderBuild(t *testing.T) {
	b := NewBuilder()
	tokens := []string{"./train.py", "--lr~loguniform(1e-5,1)", "--epochs", "10"}
	sp, tmpl, err := b.Build(tokens)
	require.NoError(t, err)
	require.Equal(t, 1, sp.Len())

	d, ok := sp.Get("lr")
	require.True(t, ok)
	assert.Equal(t, PriorLogUniform, d.Prior().Name)

	args, err := tmpl.Rehydrate([]Param{{Name: "lr", Value: Value{Kind: KindReal, F: 0.01}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"./train.py", "--lr=0.01", "--epochs", "10"}, args)
}

func TestBuilderNamelessArgs(t *testing.T) {
	b := NewBuilder()
	tokens := []string{"./train.py", "--lr~loguniform(1e-5,1)", "--epochs", "10"}
	na := b.NamelessArgs(tokens)
	assert.Equal(t, "./train.py --lr --epochs 10", na)
}

func TestBuilderDuplicateDimension(t *testing.T) {
	b := NewBuilder()
	tokens := []string{"--lr~uniform(0,1)", "--lr~uniform(0,2)"}
	_, _, err := b.Build(tokens)
	assert.Error(t, err)
}

func TestBuilderConfigFile(t *testing.T) {
	b := NewBuilder()
	tokens := []string{"./train.py", "--config", "/tmp/cfg.yaml"}
	_, tmpl, err := b.Build(tokens)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cfg.yaml", tmpl.ConfigPath)
}

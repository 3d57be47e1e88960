package evc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/trial"
)

type fakeSource struct {
	byExperiment map[string][]*trial.Trial
}

func (f *fakeSource) TrialsForExperiment(id string) ([]*trial.Trial, error) {
	return f.byExperiment[id], nil
}

func TestFetchTrialsFromTree(t *testing.T) {
	parents := map[string]string{"root": "", "child": "root"}
	renameChain := Chain{DimensionRenaming{Old: "a", New: "b"}}
	adapters := map[string]Chain{"root": nil, "child": renameChain}
	tree := NewTree(parents, adapters)

	src := &fakeSource{byExperiment: map[string][]*trial.Trial{
		"root":  {{ID: "r1", Params: []space.Param{{Name: "a", Value: space.Value{Kind: space.KindReal, F: 0.5}}}}},
		"child": {{ID: "c1", Params: []space.Param{{Name: "b", Value: space.Value{Kind: space.KindReal, F: 0.9}}}}},
	}}

	hashOf := func(tr *trial.Trial) string {
		if len(tr.Params) == 0 {
			return tr.ID
		}
		return tr.Params[0].Name + ":" + tr.ID
	}

	out, err := tree.FetchTrialsFromTree("child", src, hashOf)
	require.NoError(t, err)
	require.Len(t, out, 2)

	var sawRenamed bool
	for _, tr := range out {
		if tr.ID == "r1" {
			require.Len(t, tr.Params, 1)
			assert.Equal(t, "b", tr.Params[0].Name)
			sawRenamed = true
		}
	}
	assert.True(t, sawRenamed, "root trial must be adapted into child's frame")
}

func TestFetchTrialsFromTreeLeafWins(t *testing.T) {
	parents := map[string]string{"root": "", "child": "root"}
	tree := NewTree(parents, map[string]Chain{"root": nil, "child": nil})

	same := []space.Param{{Name: "a", Value: space.Value{Kind: space.KindReal, F: 0.5}}}
	src := &fakeSource{byExperiment: map[string][]*trial.Trial{
		"root":  {{ID: "r1", Params: same, Status: trial.StatusCompleted}},
		"child": {{ID: "c1", Params: same, Status: trial.StatusReserved}},
	}}

	hashOf := func(tr *trial.Trial) string { return "fixed-key" }

	out, err := tree.FetchTrialsFromTree("child", src, hashOf)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID, "leaf's copy must win on hash collision")
}

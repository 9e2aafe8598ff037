package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
)

func noop(name string, upstream ...string) domain.TaskNode {
	return domain.TaskNode{Name: name, Kind: domain.TaskKindNoOp, Upstream: upstream}
}

func TestResolveExecutionOrder(t *testing.T) {
	tests := []struct {
		name       string
		nodes      []domain.TaskNode
		wantLevels [][]string
		wantErr    bool
	}{
		{
			name:       "single_node_no_deps",
			nodes:      []domain.TaskNode{noop("begin")},
			wantLevels: [][]string{{"begin"}},
		},
		{
			name:       "linear_chain",
			nodes:      []domain.TaskNode{noop("A"), noop("B", "A"), noop("C", "B")},
			wantLevels: [][]string{{"A"}, {"B"}, {"C"}},
		},
		{
			name: "diamond_dependency",
			nodes: []domain.TaskNode{
				noop("extract"),
				noop("transform_b", "extract"),
				noop("transform_a", "extract"),
				noop("load", "transform_a", "transform_b"),
			},
			wantLevels: [][]string{{"extract"}, {"transform_b", "transform_a"}, {"load"}},
		},
		{
			name:       "independent_roots",
			nodes:      []domain.TaskNode{noop("x"), noop("y"), noop("z")},
			wantLevels: [][]string{{"x", "y", "z"}},
		},
		{
			name:       "empty",
			nodes:      nil,
			wantLevels: nil,
		},
		{
			name:    "cycle",
			nodes:   []domain.TaskNode{noop("A", "C"), noop("B", "A"), noop("C", "B")},
			wantErr: true,
		},
		{
			name:    "self_dependency",
			nodes:   []domain.TaskNode{noop("A", "A")},
			wantErr: true,
		},
		{
			name:    "unknown_upstream",
			nodes:   []domain.TaskNode{noop("A", "ghost")},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			levels, err := ResolveExecutionOrder(tc.nodes)
			if tc.wantErr {
				var ve *domain.ValidationError
				require.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLevels, levels)
		})
	}
}

func TestBuilder_Build(t *testing.T) {
	g, err := NewBuilder("sparkify").
		AddNode(noop("begin")).
		AddNode(noop("stage_events")).
		AddNode(noop("stage_songs")).
		AddNode(noop("load_songplays", "stage_events")).
		AddNode(noop("end")).
		AddEdge("begin", "stage_events").
		AddEdge("begin", "stage_songs").
		AddEdge("stage_songs", "load_songplays").
		AddEdge("stage_events", "load_songplays").
		AddEdge("load_songplays", "end").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "sparkify", g.Name())
	assert.Equal(t, 5, g.Len())
	assert.Equal(t, []string{"begin"}, g.Roots())
	assert.Equal(t, [][]string{{"begin"}, {"stage_events", "stage_songs"}, {"load_songplays"}, {"end"}}, g.Levels())
	assert.ElementsMatch(t, []string{"stage_events", "stage_songs"}, g.Upstream("load_songplays"))
	assert.ElementsMatch(t, []string{"stage_events", "stage_songs"}, g.Downstream("begin"))

	closure, err := g.UpstreamClosure([]string{"load_songplays"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"begin": true, "stage_events": true, "stage_songs": true, "load_songplays": true}, closure)

	_, err = g.UpstreamClosure([]string{"ghost"})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestBuilder_LoadWithoutMode(t *testing.T) {
	g, err := NewBuilder("p").
		AddNode(domain.TaskNode{
			Name: "users",
			Kind: domain.TaskKindLoadDimension,
			Load: &domain.LoadConfig{Table: "users", SelectTemplate: "user_table_insert"},
		}).
		Build()
	require.NoError(t, err)

	n, ok := g.Node("users")
	require.True(t, ok)
	assert.Empty(t, n.Load.Mode)
}

func TestBuilder_GraphIsImmutable(t *testing.T) {
	b := NewBuilder("p").AddNode(noop("a")).AddNode(noop("b", "a"))
	g, err := b.Build()
	require.NoError(t, err)

	nodes := g.Nodes()
	nodes[1].Upstream[0] = "mutated"
	up := g.Upstream("b")
	up[0] = "mutated"

	assert.Equal(t, []string{"a"}, g.Upstream("b"))
}

func TestBuilder_Rejects(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{name: "no name", b: NewBuilder("").AddNode(noop("a"))},
		{name: "no tasks", b: NewBuilder("p")},
		{name: "duplicate task", b: NewBuilder("p").AddNode(noop("a")).AddNode(noop("a"))},
		{name: "edge from unknown", b: NewBuilder("p").AddNode(noop("a")).AddEdge("ghost", "a")},
		{name: "edge to unknown", b: NewBuilder("p").AddNode(noop("a")).AddEdge("a", "ghost")},
		{name: "self edge", b: NewBuilder("p").AddNode(noop("a")).AddEdge("a", "a")},
		{name: "cycle", b: NewBuilder("p").AddNode(noop("a", "b")).AddNode(noop("b", "a"))},
		{name: "invalid node", b: NewBuilder("p").AddNode(domain.TaskNode{Name: "s", Kind: domain.TaskKindStage})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.b.Build()
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderedIDs(steps []Step) []string {
	ids := make([]string, len(steps))
	for i, step := range steps {
		ids[i] = step.ID()
	}
	return ids
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()
	require.Equal(t, 0, registry.Count())

	require.NoError(t, registry.Register(newStubStep("load")))
	require.NoError(t, registry.Register(newStubStep("validate", "load")))
	require.Equal(t, 2, registry.Count())

	got, err := registry.Get("load")
	require.NoError(t, err)
	assert.Equal(t, "load", got.ID())

	assert.True(t, registry.Has("validate"))
	assert.False(t, registry.Has("report"))
	assert.Equal(t, []string{"load", "validate"}, registry.ListIDs())
}

func TestRegistry_RegisterErrors(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(nil)
	require.ErrorContains(t, err, "nil step")

	err = registry.Register(newStubStep(""))
	require.ErrorContains(t, err, "ID cannot be empty")

	require.NoError(t, registry.Register(newStubStep("load")))
	err = registry.Register(newStubStep("load"))
	require.ErrorContains(t, err, "already registered")
}

func TestRegistry_Get_NotFound(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Get("missing")
	require.ErrorContains(t, err, "not found")
}

func TestRegistry_DependencyOrder(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		want  []string
	}{
		{
			name: "linear chain",
			steps: []Step{
				newStubStep("load"),
				newStubStep("validate", "load"),
				newStubStep("clean", "validate"),
			},
			want: []string{"load", "validate", "clean"},
		},
		{
			name: "registration order breaks ties",
			steps: []Step{
				newStubStep("load"),
				newStubStep("kpis", "load"),
				newStubStep("correlate", "load"),
				newStubStep("report", "kpis", "correlate"),
			},
			want: []string{"load", "kpis", "correlate", "report"},
		},
		{
			name: "dependencies registered out of order",
			steps: []Step{
				newStubStep("report", "kpis"),
				newStubStep("kpis", "load"),
				newStubStep("load"),
			},
			want: []string{"load", "kpis", "report"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			for _, step := range tt.steps {
				require.NoError(t, registry.Register(step))
			}

			ordered, err := registry.DependencyOrder()
			require.NoError(t, err)
			assert.Equal(t, tt.want, orderedIDs(ordered))
		})
	}
}

func TestRegistry_DependencyOrder_Cycle(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStubStep("a", "b")))
	require.NoError(t, registry.Register(newStubStep("b", "a")))

	_, err := registry.DependencyOrder()
	require.ErrorContains(t, err, "cycle")
}

func TestRegistry_DependencyOrder_UnregisteredDep(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStubStep("report", "kpis")))

	_, err := registry.DependencyOrder()
	require.ErrorContains(t, err, "unregistered")
}

func TestRegistry_ValidateDependencies(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStubStep("load")))
	require.NoError(t, registry.Register(newStubStep("validate", "load")))
	require.NoError(t, registry.ValidateDependencies())

	require.NoError(t, registry.Register(newStubStep("orphan", "ghost")))
	require.Error(t, registry.ValidateDependencies())
}

func TestRegistry_Dependents(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStubStep("load")))
	require.NoError(t, registry.Register(newStubStep("kpis", "load")))
	require.NoError(t, registry.Register(newStubStep("correlate", "load")))
	require.NoError(t, registry.Register(newStubStep("report", "kpis")))

	dependents := registry.Dependents("load")
	assert.Equal(t, []string{"kpis", "correlate"}, orderedIDs(dependents))

	assert.Empty(t, registry.Dependents("report"))
}

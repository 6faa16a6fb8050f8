package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedTool(t *testing.T, name string) *Tool {
	t.Helper()
	built, err := New(Tool{
		Name:        name,
		Description: "test tool " + name,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return name, nil
		},
	})
	require.NoError(t, err)
	return built
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r, err := NewRegistry(namedTool(t, "alpha"), namedTool(t, "beta"))
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	assert.NotNil(t, r.Get("alpha"))
	assert.Nil(t, r.Get("missing"))
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(namedTool(t, "same"), namedTool(t, "same"))
	assert.Error(t, err)
}

func TestRegistry_RejectsNil(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, r.Register(nil))
}

func TestRegistry_PreservesRegistrationOrder(t *testing.T) {
	r, err := NewRegistry(namedTool(t, "zulu"), namedTool(t, "alpha"), namedTool(t, "mike"))
	require.NoError(t, err)

	assert.Equal(t, []string{"zulu", "alpha", "mike"}, r.Names())

	specs := r.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "zulu", specs[0].Name)
	assert.Equal(t, "alpha", specs[1].Name)
	assert.Equal(t, "mike", specs[2].Name)
}

func TestRegistry_SortedNames(t *testing.T) {
	r, err := NewRegistry(namedTool(t, "zulu"), namedTool(t, "alpha"))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "zulu"}, r.SortedNames())
	// Names stays in registration order
	assert.Equal(t, []string{"zulu", "alpha"}, r.Names())
}

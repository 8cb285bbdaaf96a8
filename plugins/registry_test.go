package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGetRoundTrip(t *testing.T) {
	r := New()
	meta := Metadata{PluginId: "p1", Name: "custom-llm", SupportedBackendTypes: []string{"custom"}}
	err := r.Register(meta, "factory-value")
	require.NoError(t, err)

	factory, gotMeta, err := r.Get("custom")
	require.NoError(t, err)
	assert.Equal(t, "factory-value", factory)
	assert.Equal(t, "custom-llm", gotMeta.Name)
}

func TestRegisterRejectsDuplicateTag(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Metadata{Name: "a", SupportedBackendTypes: []string{"dup"}}, "a"))
	err := r.Register(Metadata{Name: "b", SupportedBackendTypes: []string{"dup"}}, "b")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// The failed registration must not leave the tag pointing at "b".
	factory, _, getErr := r.Get("dup")
	require.NoError(t, getErr)
	assert.Equal(t, "a", factory)
}

func TestRegisterIsAllOrNothingAcrossMultipleTags(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Metadata{Name: "existing", SupportedBackendTypes: []string{"taken"}}, "existing"))

	err := r.Register(Metadata{Name: "multi", SupportedBackendTypes: []string{"fresh", "taken"}}, "multi")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, _, err = r.Get("fresh")
	assert.ErrorIs(t, err, ErrNotFound, "a tag from a rejected registration must not be claimed")
}

func TestGetUnknownTagReturnsNotFound(t *testing.T) {
	r := New()
	_, _, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListReturnsSortedTags(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Metadata{Name: "z", SupportedBackendTypes: []string{"zeta"}}, "z"))
	require.NoError(t, r.Register(Metadata{Name: "a", SupportedBackendTypes: []string{"alpha"}}, "a"))
	require.NoError(t, r.Register(Metadata{Name: "m", SupportedBackendTypes: []string{"mid"}}, "m"))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())
}

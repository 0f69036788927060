package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestCatalogLookup(t *testing.T) {
	c := New([]config.ParameterConfig{
		{ID: "ph", Unit: "pH", SubgroupSize: 1, Spec: model.SpecLimits{LSL: ptr(3.2), USL: ptr(3.8)}},
		{ID: "brix", Name: "Brix", SubgroupSize: 5, NonNegative: true,
			Spec: model.SpecLimits{LSL: ptr(10), USL: ptr(12)},
			ProductSpecs: map[string]model.SpecLimits{
				"cola": {LSL: ptr(10.5), USL: ptr(11), Target: ptr(10.75)},
			}},
	})

	e, err := c.Lookup("ph")
	require.NoError(t, err)
	assert.Equal(t, "ph", e.Parameter.Name, "name defaults to the id")
	assert.Equal(t, "pH", e.Parameter.Unit)

	_, err = c.Lookup("nope")
	require.ErrorIs(t, err, model.ErrParameterNotFound)

	spec, err := c.SpecLimits("brix", "cola")
	require.NoError(t, err)
	assert.Equal(t, 10.5, *spec.LSL)
	assert.Equal(t, 10.75, *spec.Target)

	spec, err = c.SpecLimits("brix", "lemonade")
	require.NoError(t, err)
	assert.Equal(t, 10.0, *spec.LSL)
	assert.Nil(t, spec.Target)

	assert.Equal(t, []string{"brix", "ph"}, c.IDs())

	c.Load(nil)
	assert.Empty(t, c.IDs())
}

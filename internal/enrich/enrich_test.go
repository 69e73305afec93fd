package enrich

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/geoserve/joins/internal/jointable"
	"github.com/geoserve/joins/internal/provider"
)

func testTable() *jointable.JoinTable {
	return &jointable.JoinTable{
		CollectionKey: "id",
		JoinFields:    []string{"city", "population", "area"},
		Data: map[string][]string{
			"1": {"Springfield", "120000", "45.2"},
			"2": {"Shelbyville", "80000", "30.1"},
		},
	}
}

func TestFeatureEnrichesMatchedRow(t *testing.T) {
	f := &provider.Feature{Properties: map[string]any{"id": "1"}}
	Feature(f, testTable())
	assert.Equal(t, f.Joined, true)
	assert.Equal(t, f.Properties["city"], "Springfield")
	assert.Equal(t, f.Properties["population"], "120000")
	assert.Equal(t, f.Properties["area"], "45.2")
}

func TestFeatureNoMatchAddsNoFields(t *testing.T) {
	f := &provider.Feature{Properties: map[string]any{"id": "999"}}
	Feature(f, testTable())
	assert.Equal(t, f.Joined, false)
	_, hasCity := f.Properties["city"]
	assert.Equal(t, hasCity, false)
}

func TestFeatureMissingPropertiesDoesNotPanic(t *testing.T) {
	f := &provider.Feature{}
	Feature(f, testTable())
	assert.Equal(t, f.Joined, false)
	_, hasCity := f.Properties["city"]
	assert.Equal(t, hasCity, false)
}

func TestFeatureNumericKeyCoercion(t *testing.T) {
	f := &provider.Feature{Properties: map[string]any{"id": float64(2)}}
	Feature(f, testTable())
	assert.Equal(t, f.Joined, true)
	assert.Equal(t, f.Properties["city"], "Shelbyville")
}

func TestFeatureIdempotent(t *testing.T) {
	table := testTable()
	f := &provider.Feature{Properties: map[string]any{"id": "1"}}
	Feature(f, table)
	first := f.Properties["city"]
	Feature(f, table)
	assert.Equal(t, f.Properties["city"], first)
	assert.Equal(t, f.Joined, true)
}

func TestFeatureCollectionCountsMatches(t *testing.T) {
	fc := &provider.FeatureCollection{
		Type: "FeatureCollection",
		Features: []provider.Feature{
			{Properties: map[string]any{"id": "1"}},
			{Properties: map[string]any{"id": "2"}},
			{Properties: map[string]any{"id": "999"}},
		},
	}
	FeatureCollection(fc, testTable())
	assert.Equal(t, fc.NumberJoined, 2)
	assert.Equal(t, fc.Features[0].Joined, true)
	assert.Equal(t, fc.Features[1].Joined, true)
	assert.Equal(t, fc.Features[2].Joined, false)
}

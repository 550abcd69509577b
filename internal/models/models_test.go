package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestMetadata_JSONKeepsUnknownKeys(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"gender":"male","age":31,"quality":"good","color":"red","matched":true}`), &m))

	assert.Equal(t, "male", m.Gender)
	require.NotNil(t, m.Age)
	assert.Equal(t, 31, *m.Age)
	assert.Equal(t, QualityGood, m.Quality)
	require.NotNil(t, m.Matched)
	assert.True(t, *m.Matched)
	assert.Equal(t, map[string]any{"color": "red"}, m.Extra)

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gender":"male","age":31,"quality":"good","color":"red","matched":true}`, string(out))
}

func TestMetadata_WrongType(t *testing.T) {
	var m Metadata
	err := json.Unmarshal([]byte(`{"gender":5}`), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gender")
}

func TestEvent_LocalAttrsNeverSerialized(t *testing.T) {
	ev := Event{
		Base:     BaseFace,
		Metadata: Metadata{Gender: "female"},
		Local:    LocalAttrs{AgeRange: &AgeRange{Min: 20, Max: 30}},
	}
	out, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "age_range")
	assert.NotContains(t, string(out), "AgeRange")
}

func TestMetadata_Merge(t *testing.T) {
	base := Metadata{Gender: "male", Quality: QualityGood}
	merged := base.Merge(Metadata{Quality: QualityBad, Extra: map[string]any{"notes": "x"}})

	assert.Equal(t, "male", merged.Gender)
	assert.Equal(t, QualityBad, merged.Quality)
	assert.Equal(t, QualityGood, base.Quality)
	assert.Nil(t, base.Extra)
}

func TestMetaFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter MetaFilter
		meta   Metadata
		want   bool
	}{
		{"empty filter defaults to good quality", MetaFilter{}, Metadata{Quality: QualityGood}, true},
		{"missing quality counts as good", MetaFilter{}, Metadata{}, true},
		{"bad quality hidden by default", MetaFilter{}, Metadata{Quality: QualityBad}, false},
		{"any quality", MetaFilter{Quality: QualityAny}, Metadata{Quality: QualityBad}, true},
		{"bad quality requested", MetaFilter{Quality: QualityBad}, Metadata{Quality: QualityGood}, false},
		{"gender equal", MetaFilter{Gender: "male"}, Metadata{Gender: "male"}, true},
		{"gender differs", MetaFilter{Gender: "male"}, Metadata{Gender: "female"}, false},
		{"gender absent", MetaFilter{Gender: "male"}, Metadata{}, false},
		{"plate wildcard", MetaFilter{LicensePlate: PlateWildcard}, Metadata{LicensePlate: "X1"}, true},
		{"plate wildcard needs plate", MetaFilter{LicensePlate: PlateWildcard}, Metadata{}, false},
		{"age inside", MetaFilter{Age: &AgeRange{20, 30}}, Metadata{Age: intPtr(30)}, true},
		{"age outside", MetaFilter{Age: &AgeRange{20, 30}}, Metadata{Age: intPtr(31)}, false},
		{"age missing", MetaFilter{Age: &AgeRange{20, 30}}, Metadata{}, false},
		{"matched flag", MetaFilter{Matched: boolPtr(true)}, Metadata{Matched: boolPtr(true)}, true},
		{"extra numeric", MetaFilter{Extra: map[string]any{"lane": 2}}, Metadata{Extra: map[string]any{"lane": float64(2)}}, true},
		{"extra missing", MetaFilter{Extra: map[string]any{"lane": 2}}, Metadata{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.meta))
		})
	}
}

func TestMetaFilter_Metadata(t *testing.T) {
	f := MetaFilter{Gender: "female", LicensePlate: PlateWildcard, Quality: QualityAny, Age: &AgeRange{1, 2}}
	m := f.Metadata()

	assert.Equal(t, "female", m.Gender)
	assert.Empty(t, m.LicensePlate)
	assert.Empty(t, m.Quality)
	assert.Nil(t, m.Age)
}

func TestROI_Valid(t *testing.T) {
	assert.True(t, ROI{{0.1, 0.1}, {0.9, 0.1}, {0.9, 0.9}, {0.1, 0.9}}.Valid())
	assert.False(t, ROI{{0.1, 0.1}, {1.9, 0.1}, {0.9, 0.9}, {0.1, 0.9}}.Valid())
	assert.False(t, ROI{}.Valid())
}

func TestEvent_CloneIsDeep(t *testing.T) {
	id := int64(7)
	ev := Event{ID: &id, Metadata: Metadata{Age: intPtr(40), Extra: map[string]any{"a": 1}}}
	c := ev.Clone()

	*c.ID = 8
	*c.Metadata.Age = 41
	c.Metadata.Extra["a"] = 2

	assert.Equal(t, int64(7), *ev.ID)
	assert.Equal(t, 40, *ev.Metadata.Age)
	assert.Equal(t, 1, ev.Metadata.Extra["a"])
}

package factory

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fdsender/internal/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type countingSource struct {
	data  []byte
	calls int
	asked []string
}

func (s *countingSource) Image(_ context.Context, base models.Base, attribute string) ([]byte, error) {
	s.calls++
	s.asked = append(s.asked, string(base)+"/"+attribute)
	return s.data, nil
}

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		in        string
		base      models.Base
		attribute string
		short     string
		meta      models.Metadata
	}{
		{"vehicle-type-sedan", models.BaseVehicle, "type-sedan", "sedan", models.Metadata{VehicleType: "sedan", Quality: models.QualityGood}},
		{"face-male", models.BaseFace, "male", "male", models.Metadata{Gender: "male", Quality: models.QualityGood}},
		{"face", models.BaseFace, "", "", models.Metadata{Quality: models.QualityGood}},
		{"face-quality-bad", models.BaseFace, "quality-bad", "bad", models.Metadata{Quality: models.QualityBad}},
		{"vehicle-license-plate", models.BaseVehicle, "license-plate", "plate", models.Metadata{LicensePlate: "A777AA77", Quality: models.QualityGood}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tpl, err := ParseTemplate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.base, tpl.Base)
			assert.Equal(t, tt.attribute, tpl.Attribute)
			assert.Equal(t, tt.short, tpl.Short)
			assert.Equal(t, tt.meta, tpl.Metadata)
		})
	}
}

func TestParseTemplate_AgeRange(t *testing.T) {
	tpl, err := ParseTemplate("face-age-20-30")
	require.NoError(t, err)
	require.NotNil(t, tpl.AgeRange)
	assert.Equal(t, models.AgeRange{Min: 20, Max: 30}, *tpl.AgeRange)
	assert.Nil(t, tpl.Metadata.Age)
	assert.NotContains(t, tpl.Metadata.Map(), "age_range")
	assert.Equal(t, "male", tpl.ImageAttribute())
	assert.Equal(t, &models.AgeRange{Min: 20, Max: 30}, tpl.Filter().Age)
}

func TestParseTemplate_Errors(t *testing.T) {
	_, err := ParseTemplate("boat-red")
	require.ErrorIs(t, err, ErrUnknownBase)

	_, err = ParseTemplate("vehicle-type-hovercraft")
	require.ErrorIs(t, err, ErrUnknownAttribute)

	_, err = ParseTemplate("face-sedan")
	require.ErrorIs(t, err, ErrUnknownAttribute)

	_, err = ParseTemplate("face-age-30-20")
	require.ErrorIs(t, err, ErrUnknownAttribute)

	_, err = ParseTemplate("face-age-x")
	require.ErrorIs(t, err, ErrUnknownAttribute)
}

func TestTemplate_Filter(t *testing.T) {
	tpl, err := ParseTemplate("vehicle-license-plate")
	require.NoError(t, err)
	assert.Equal(t, models.PlateWildcard, tpl.Filter().LicensePlate)

	tpl, err = ParseTemplate("face-bad")
	require.NoError(t, err)
	assert.Equal(t, models.QualityBad, tpl.Filter().Quality)
}

func TestBuild(t *testing.T) {
	src := &countingSource{data: pngBytes(t, 8, 6)}
	f := New(src)
	tpl, err := ParseTemplate("vehicle-type-sedan")
	require.NoError(t, err)

	cam := models.Camera{ID: 3, Name: "camera-3", Active: true}
	ev, err := f.Build(context.Background(), tpl, cam, 1_700_000_000, &models.Metadata{Extra: map[string]any{"lane": 2}})
	require.NoError(t, err)

	assert.True(t, ev.NeedsResolution)
	assert.Nil(t, ev.ID)
	assert.NotEqual(t, [16]byte{}, [16]byte(ev.LocalID))
	assert.Equal(t, models.BaseVehicle, ev.Base)
	assert.Equal(t, "sedan", ev.Metadata.VehicleType)
	assert.Equal(t, 2, ev.Metadata.Extra["lane"])
	assert.Equal(t, DefaultROI(models.BaseVehicle), ev.ROI)
	assert.Equal(t, []string{"vehicle/type-sedan"}, src.asked)
}

func TestBuild_DefaultAttributeImage(t *testing.T) {
	src := &countingSource{data: pngBytes(t, 2, 2)}
	tpl, err := ParseTemplate("vehicle")
	require.NoError(t, err)

	_, err = New(src).Build(context.Background(), tpl, models.Camera{}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"vehicle/type-sedan"}, src.asked)
}

func TestIngestRequest(t *testing.T) {
	src := &countingSource{data: pngBytes(t, 8, 6)}
	tpl, err := ParseTemplate("face-age-20-30")
	require.NoError(t, err)

	ev, err := New(src).Build(context.Background(), tpl, models.Camera{ID: 9}, 100, nil)
	require.NoError(t, err)
	require.NotNil(t, ev.Local.AgeRange)

	req, err := IngestRequest(ev, "tok")
	require.NoError(t, err)
	assert.Equal(t, "tok", req.Token)
	assert.Equal(t, "face", req.Label)
	assert.Equal(t, int64(9), req.CameraID)
	assert.Equal(t, int64(100_000_000), req.Timestamp)
	assert.Equal(t, [3]int{6, 8, 4}, req.ImageShape)
	assert.Equal(t, map[string]any{"quality": "good"}, req.Metadata)
	assert.Equal(t, "face-detector", req.Analytics)
}

func TestIngestRequest_BadImage(t *testing.T) {
	_, err := IngestRequest(&models.Event{Image: []byte("nope")}, "")
	require.Error(t, err)
}

func TestDirSource_AndCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "face"), 0o755))
	data := pngBytes(t, 1, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "face", "male.jpg"), data, 0o600))

	src := &countingSource{data: data}
	cached := NewCachedSource(src)
	for range 3 {
		got, err := cached.Image(context.Background(), models.BaseFace, "male")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
	assert.Equal(t, 1, src.calls)

	got, err := DirSource{Dir: dir}.Image(context.Background(), models.BaseFace, "male")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = DirSource{Dir: dir}.Image(context.Background(), models.BaseFace, "female")
	require.Error(t, err)
}

type mapGetter map[string][]byte

func (m mapGetter) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func TestBucketSource(t *testing.T) {
	src := BucketSource{Store: mapGetter{"templates/person/male.jpg": []byte("img")}}
	got, err := src.Image(context.Background(), models.BasePerson, "male")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)

	_, err = src.Image(context.Background(), models.BasePerson, "female")
	require.ErrorIs(t, err, os.ErrNotExist)
}

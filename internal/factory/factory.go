// Package factory crafts synthetic detection events from template keys.
package factory

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"

	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/pkg/dto"
)

const defaultScore = 0.99

type Factory struct {
	images ImageSource
}

func New(images ImageSource) *Factory {
	return &Factory{images: images}
}

// Build crafts one unresolved event. extra, when set, overlays the template
// metadata.
func (f *Factory) Build(ctx context.Context, t Template, cam models.Camera, timestamp int64, extra *models.Metadata) (*models.Event, error) {
	img, err := f.images.Image(ctx, t.Base, t.ImageAttribute())
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", t.Raw, err)
	}

	meta := t.Metadata.Clone()
	if extra != nil {
		meta = meta.Merge(*extra)
	}

	ev := &models.Event{
		LocalID:         uuid.New(),
		Template:        t.Raw,
		Base:            t.Base,
		Camera:          cam,
		Timestamp:       timestamp,
		ROI:             DefaultROI(t.Base),
		Metadata:        meta,
		Image:           img,
		NeedsResolution: true,
	}
	if t.AgeRange != nil {
		r := *t.AgeRange
		ev.Local.AgeRange = &r
	}
	return ev, nil
}

// IngestRequest serializes an event into the ingest wire payload.
// Only ev.Metadata is transmitted; ev.Local stays in the process.
func IngestRequest(ev *models.Event, token string) (*dto.IngestRequest, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(ev.Image))
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	return &dto.IngestRequest{
		Token:      token,
		Label:      string(ev.Base),
		CameraID:   ev.Camera.ID,
		Timestamp:  ev.Timestamp * 1_000_000,
		Metadata:   ev.Metadata.Map(),
		Score:      defaultScore,
		Image:      ev.Image,
		ImageShape: [3]int{cfg.Height, cfg.Width, channels(cfg.ColorModel)},
		ROI:        ev.ROI,
		Analytics:  string(ev.Base) + "-detector",
	}, nil
}

func channels(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return 4
	default:
		return 3
	}
}

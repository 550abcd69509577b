package factory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/your-org/fdsender/internal/models"
)

var (
	ErrUnknownBase      = errors.New("unknown base")
	ErrUnknownAttribute = errors.New("unknown attribute")
)

const attrAge = "age"

// Template is a decomposed template key such as "vehicle-type-sedan".
type Template struct {
	Raw       string
	Base      models.Base
	Attribute string // "type-sedan"
	Short     string // "sedan"
	AgeRange  *models.AgeRange
	Metadata  models.Metadata
}

// Attribute tables, per base. Keys are short attributes.
var attributes = map[models.Base]map[string]models.Metadata{
	models.BaseFace: {
		"male":   {Gender: "male"},
		"female": {Gender: "female"},
		"good":   {Quality: models.QualityGood},
		"bad":    {Quality: models.QualityBad},
	},
	models.BaseVehicle: {
		"sedan":   {VehicleType: "sedan"},
		"suv":     {VehicleType: "suv"},
		"truck":   {VehicleType: "truck"},
		"bus":     {VehicleType: "bus"},
		"minivan": {VehicleType: "minivan"},
		"plate":   {LicensePlate: "A777AA77"},
		"good":    {Quality: models.QualityGood},
		"bad":     {Quality: models.QualityBad},
	},
	models.BasePerson: {
		"male":   {Gender: "male"},
		"female": {Gender: "female"},
		"good":   {Quality: models.QualityGood},
		"bad":    {Quality: models.QualityBad},
	},
}

// defaultAttributes pick the reference image when a template has no attribute.
var defaultAttributes = map[models.Base]string{
	models.BaseFace:    "male",
	models.BaseVehicle: "type-sedan",
	models.BasePerson:  "male",
}

var defaultROIs = map[models.Base]models.ROI{
	models.BaseFace:    {{0.30, 0.20}, {0.70, 0.20}, {0.70, 0.80}, {0.30, 0.80}},
	models.BaseVehicle: {{0.10, 0.30}, {0.90, 0.30}, {0.90, 0.90}, {0.10, 0.90}},
	models.BasePerson:  {{0.35, 0.10}, {0.65, 0.10}, {0.65, 0.95}, {0.35, 0.95}},
}

// ParseTemplate splits "<base>[-<attribute>]" and looks the attribute up.
// "face-age-20-30" is special: the range goes to Template.AgeRange.
func ParseTemplate(s string) (Template, error) {
	parts := strings.Split(s, "-")
	base, err := models.ParseBase(parts[0])
	if err != nil {
		return Template{}, fmt.Errorf("template %q: %w", s, ErrUnknownBase)
	}

	t := Template{
		Raw:       s,
		Base:      base,
		Attribute: strings.Join(parts[1:], "-"),
	}

	switch {
	case t.Attribute == "":
	case parts[1] == attrAge:
		if base == models.BaseVehicle {
			return Template{}, fmt.Errorf("template %q: age on %s: %w", s, base, ErrUnknownAttribute)
		}
		r, err := parseAgeRange(parts[2:])
		if err != nil {
			return Template{}, fmt.Errorf("template %q: %w", s, err)
		}
		t.Short = attrAge
		t.AgeRange = &r
	default:
		t.Short = parts[len(parts)-1]
		meta, ok := attributes[base][t.Short]
		if !ok {
			return Template{}, fmt.Errorf("template %q: %q: %w", s, t.Short, ErrUnknownAttribute)
		}
		t.Metadata = meta.Clone()
	}

	if t.Metadata.Quality == "" {
		t.Metadata.Quality = models.QualityGood
	}
	return t, nil
}

func parseAgeRange(parts []string) (models.AgeRange, error) {
	if len(parts) != 2 {
		return models.AgeRange{}, fmt.Errorf("age range wants <min>-<max>: %w", ErrUnknownAttribute)
	}
	lo, err := strconv.Atoi(parts[0])
	if err != nil {
		return models.AgeRange{}, fmt.Errorf("age range min: %w", ErrUnknownAttribute)
	}
	hi, err := strconv.Atoi(parts[1])
	if err != nil {
		return models.AgeRange{}, fmt.Errorf("age range max: %w", ErrUnknownAttribute)
	}
	if lo < 0 || hi < lo {
		return models.AgeRange{}, fmt.Errorf("age range %d-%d: %w", lo, hi, ErrUnknownAttribute)
	}
	return models.AgeRange{Min: lo, Max: hi}, nil
}

// ImageAttribute names the reference image used for this template.
func (t Template) ImageAttribute() string {
	if t.Attribute == "" || t.AgeRange != nil {
		return defaultAttributes[t.Base]
	}
	return t.Attribute
}

// Filter is the count predicate matching events built from this template.
func (t Template) Filter() models.MetaFilter {
	f := models.MetaFilter{
		Gender:      t.Metadata.Gender,
		VehicleType: t.Metadata.VehicleType,
		Age:         t.AgeRange,
	}
	if t.Metadata.LicensePlate != "" {
		f.LicensePlate = models.PlateWildcard
	}
	if t.Metadata.Quality == models.QualityBad {
		f.Quality = models.QualityBad
	}
	return f
}

func DefaultROI(base models.Base) models.ROI {
	return defaultROIs[base]
}

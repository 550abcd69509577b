package models

import "fmt"

// PlateWildcard matches any non-empty license plate.
const PlateWildcard = "*"

// MetaFilter is a metadata predicate used by count queries.
// Zero-valued fields are not tested, except Quality: an empty Quality means
// "good", so callers have to ask for QualityAny or QualityBad explicitly.
type MetaFilter struct {
	Gender       string
	Age          *AgeRange
	LicensePlate string
	Quality      Quality
	VehicleType  string
	IsReference  *bool
	Matched      *bool
	Extra        map[string]any
}

// Matches reports whether m satisfies the filter.
func (f MetaFilter) Matches(m Metadata) bool {
	if f.Gender != "" && m.Gender != f.Gender {
		return false
	}
	if f.VehicleType != "" && m.VehicleType != f.VehicleType {
		return false
	}
	switch f.LicensePlate {
	case "":
	case PlateWildcard:
		if m.LicensePlate == "" {
			return false
		}
	default:
		if m.LicensePlate != f.LicensePlate {
			return false
		}
	}
	if f.Age != nil && (m.Age == nil || !f.Age.Contains(*m.Age)) {
		return false
	}
	if !f.qualityMatches(m.Quality) {
		return false
	}
	if f.IsReference != nil && (m.IsReference == nil || *m.IsReference != *f.IsReference) {
		return false
	}
	if f.Matched != nil && (m.Matched == nil || *m.Matched != *f.Matched) {
		return false
	}
	for k, want := range f.Extra {
		got, ok := m.Extra[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func (f MetaFilter) qualityMatches(q Quality) bool {
	switch f.Quality {
	case QualityAny:
		return true
	case "":
		// Events without a quality attribute are treated as good.
		return q == "" || q == QualityGood
	case QualityGood:
		return q == "" || q == QualityGood
	default:
		return q == f.Quality
	}
}

// And combines two filters; fields set on o win.
func (f MetaFilter) And(o MetaFilter) MetaFilter {
	out := f
	if o.Gender != "" {
		out.Gender = o.Gender
	}
	if o.Age != nil {
		out.Age = o.Age
	}
	if o.LicensePlate != "" {
		out.LicensePlate = o.LicensePlate
	}
	if o.Quality != "" {
		out.Quality = o.Quality
	}
	if o.VehicleType != "" {
		out.VehicleType = o.VehicleType
	}
	if o.IsReference != nil {
		out.IsReference = o.IsReference
	}
	if o.Matched != nil {
		out.Matched = o.Matched
	}
	if len(o.Extra) > 0 {
		extra := make(map[string]any, len(f.Extra)+len(o.Extra))
		for k, v := range f.Extra {
			extra[k] = v
		}
		for k, v := range o.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}

// Metadata returns the concrete attributes a sent event needs to satisfy the
// filter. Range and wildcard tests have no concrete value and are skipped.
func (f MetaFilter) Metadata() Metadata {
	m := Metadata{
		Gender:      f.Gender,
		VehicleType: f.VehicleType,
		IsReference: f.IsReference,
		Matched:     f.Matched,
	}
	if f.LicensePlate != PlateWildcard {
		m.LicensePlate = f.LicensePlate
	}
	if f.Quality == QualityGood || f.Quality == QualityBad {
		m.Quality = f.Quality
	}
	if len(f.Extra) > 0 {
		m.Extra = make(map[string]any, len(f.Extra))
		for k, v := range f.Extra {
			m.Extra[k] = v
		}
	}
	return m
}

package models

import (
	"encoding/json"
	"fmt"
	"maps"
)

type Quality string

const (
	QualityGood Quality = "good"
	QualityBad  Quality = "bad"
	// QualityAny is only meaningful in filters.
	QualityAny Quality = "any"
)

// Metadata keys on the wire.
const (
	KeyGender       = "gender"
	KeyAge          = "age"
	KeyLicensePlate = "license_plate"
	KeyQuality      = "quality"
	KeyVehicleType  = "type"
	KeyIsReference  = "is_reference"
	KeyMatched      = "matched"
)

// Metadata is the transmittable attribute set of an event. Fields the engine
// reasons about are typed; everything else round-trips through Extra.
type Metadata struct {
	Gender       string
	Age          *int
	LicensePlate string
	Quality      Quality
	VehicleType  string
	IsReference  *bool
	Matched      *bool
	Extra        map[string]any
}

func (m Metadata) Clone() Metadata {
	c := m
	if m.Age != nil {
		a := *m.Age
		c.Age = &a
	}
	if m.IsReference != nil {
		b := *m.IsReference
		c.IsReference = &b
	}
	if m.Matched != nil {
		b := *m.Matched
		c.Matched = &b
	}
	c.Extra = maps.Clone(m.Extra)
	return c
}

// Merge overlays every set field of o onto m.
func (m Metadata) Merge(o Metadata) Metadata {
	out := m.Clone()
	if o.Gender != "" {
		out.Gender = o.Gender
	}
	if o.Age != nil {
		a := *o.Age
		out.Age = &a
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
		b := *o.IsReference
		out.IsReference = &b
	}
	if o.Matched != nil {
		b := *o.Matched
		out.Matched = &b
	}
	if len(o.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(o.Extra))
		}
		maps.Copy(out.Extra, o.Extra)
	}
	return out
}

// Map flattens the metadata into a wire map.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+7)
	maps.Copy(out, m.Extra)
	if m.Gender != "" {
		out[KeyGender] = m.Gender
	}
	if m.Age != nil {
		out[KeyAge] = *m.Age
	}
	if m.LicensePlate != "" {
		out[KeyLicensePlate] = m.LicensePlate
	}
	if m.Quality != "" {
		out[KeyQuality] = string(m.Quality)
	}
	if m.VehicleType != "" {
		out[KeyVehicleType] = m.VehicleType
	}
	if m.IsReference != nil {
		out[KeyIsReference] = *m.IsReference
	}
	if m.Matched != nil {
		out[KeyMatched] = *m.Matched
	}
	return out
}

// MetadataFromMap splits a wire map into typed fields and Extra.
func MetadataFromMap(src map[string]any) (Metadata, error) {
	var m Metadata
	for k, v := range src {
		var err error
		switch k {
		case KeyGender:
			m.Gender, err = asString(k, v)
		case KeyLicensePlate:
			m.LicensePlate, err = asString(k, v)
		case KeyVehicleType:
			m.VehicleType, err = asString(k, v)
		case KeyQuality:
			var q string
			q, err = asString(k, v)
			m.Quality = Quality(q)
		case KeyAge:
			var a int
			a, err = asInt(k, v)
			m.Age = &a
		case KeyIsReference:
			var b bool
			b, err = asBool(k, v)
			m.IsReference = &b
		case KeyMatched:
			var b bool
			b, err = asBool(k, v)
			m.Matched = &b
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
		if err != nil {
			return Metadata{}, err
		}
	}
	return m, nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := MetadataFromMap(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("metadata %s: want string, got %T", key, v)
	}
	return s, nil
}

func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("metadata %s: %w", key, err)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("metadata %s: want number, got %T", key, v)
	}
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("metadata %s: want bool, got %T", key, v)
	}
	return b, nil
}

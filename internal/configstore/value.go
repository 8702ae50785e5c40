package configstore

import (
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// typed reads section.key and converts it to wantType before decoding into
// goVal, wrapping conversion failures in a FormatError.
func (s *Store) typed(section, key string, wantType cty.Type, goVal any) error {
	v, err := s.Get(section, key)
	if err != nil {
		return err
	}
	cv, err := convert.Convert(v, wantType)
	if err != nil {
		return &FormatError{Section: section, Key: key, Detail: err.Error()}
	}
	if err := gocty.FromCtyValue(cv, goVal); err != nil {
		return &FormatError{Section: section, Key: key, Detail: err.Error()}
	}
	return nil
}

// GetString returns section.key as a string.
func (s *Store) GetString(section, key string) (string, error) {
	var out string
	err := s.typed(section, key, cty.String, &out)
	return out, err
}

// GetInt returns section.key as an int.
func (s *Store) GetInt(section, key string) (int, error) {
	var out int
	err := s.typed(section, key, cty.Number, &out)
	return out, err
}

// GetFloat returns section.key as a float64.
func (s *Store) GetFloat(section, key string) (float64, error) {
	var out float64
	err := s.typed(section, key, cty.Number, &out)
	return out, err
}

// GetBool returns section.key as a bool.
func (s *Store) GetBool(section, key string) (bool, error) {
	var out bool
	err := s.typed(section, key, cty.Bool, &out)
	return out, err
}

// GetStringList returns section.key as a list of strings. An empty list
// value decodes to a nil slice.
func (s *Store) GetStringList(section, key string) ([]string, error) {
	v, err := s.Get(section, key)
	if err != nil {
		return nil, err
	}
	if v.IsNull() || !v.CanIterateElements() {
		return nil, &FormatError{Section: section, Key: key, Detail: "expected a list of strings"}
	}
	var out []string
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		cv, err := convert.Convert(ev, cty.String)
		if err != nil {
			return nil, &FormatError{Section: section, Key: key, Detail: err.Error()}
		}
		var elem string
		if err := gocty.FromCtyValue(cv, &elem); err != nil {
			return nil, &FormatError{Section: section, Key: key, Detail: err.Error()}
		}
		out = append(out, elem)
	}
	return out, nil
}

// StringList builds a cty value suitable for Set from a string slice.
func StringList(elems []string) cty.Value {
	if len(elems) == 0 {
		return cty.EmptyTupleVal
	}
	vals := make([]cty.Value, len(elems))
	for i, e := range elems {
		vals[i] = cty.StringVal(e)
	}
	return cty.TupleVal(vals)
}

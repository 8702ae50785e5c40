package configstore

import "fmt"

// MissingKeyError reports a required section or key that is absent from the
// store. Key is empty when the whole section is missing.
type MissingKeyError struct {
	Section string
	Key     string
}

func (e *MissingKeyError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config has no section %q", e.Section)
	}
	return fmt.Sprintf("config section %q has no key %q", e.Section, e.Key)
}

// FormatError reports a value that exists but cannot be interpreted as the
// requested type, or a malformed domain value (e.g. a frequency range spec).
type FormatError struct {
	Section string
	Key     string
	Detail  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("config key %s.%s: %s", e.Section, e.Key, e.Detail)
}

// Package configstore implements the key/value configuration store backing a
// pipeline run. A configuration file is a set of HCL blocks (sections), each
// holding attributes (keys) with literal values. Reads go through a parsed
// value index; writes go through hclwrite so that a mutated store can be
// rendered back to disk, including surgically overwritten per-partition
// copies.
package configstore

import (
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Store is an in-memory configuration document. It is not safe for
// concurrent use; the planner is single-threaded by design.
type Store struct {
	path string
	file *hclwrite.File
	vals map[string]map[string]cty.Value
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Store, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	s, err := Parse(src, path)
	if err != nil {
		return nil, err
	}
	s.path = path
	return s, nil
}

// Parse builds a Store from raw HCL source. The filename is used only for
// diagnostics.
func Parse(src []byte, filename string) (*Store, error) {
	wf, diags := hclwrite.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config %s: %w", filename, diags)
	}

	vals, err := index(src, filename)
	if err != nil {
		return nil, err
	}

	return &Store{file: wf, vals: vals}, nil
}

// New returns an empty Store that renders to the given path.
func New(path string) *Store {
	return &Store{
		path: path,
		file: hclwrite.NewEmptyFile(),
		vals: make(map[string]map[string]cty.Value),
	}
}

// index evaluates every attribute of every top-level block into a
// section -> key -> value map. Values must be literal expressions; the
// config language has no variables or functions.
func index(src []byte, filename string) (map[string]map[string]cty.Value, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config %s: %w", filename, diags)
	}

	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected body type in %s", filename)
	}

	vals := make(map[string]map[string]cty.Value)
	for _, block := range body.Blocks {
		section := vals[block.Type]
		if section == nil {
			section = make(map[string]cty.Value)
			vals[block.Type] = section
		}
		for name, attr := range block.Body.Attributes {
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, &FormatError{Section: block.Type, Key: name, Detail: diags.Error()}
			}
			section[name] = v
		}
	}
	return vals, nil
}

// Path returns the file path this store was loaded from, or will be saved to.
func (s *Store) Path() string { return s.path }

// Sections returns the names of all sections, sorted.
func (s *Store) Sections() []string {
	names := make([]string, 0, len(s.vals))
	for name := range s.vals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasSection reports whether the named section exists.
func (s *Store) HasSection(section string) bool {
	_, ok := s.vals[section]
	return ok
}

// Keys returns the key names of a section, sorted. A missing section yields
// an empty slice.
func (s *Store) Keys(section string) []string {
	keys := make([]string, 0, len(s.vals[section]))
	for k := range s.vals[section] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the raw value of section.key.
func (s *Store) Get(section, key string) (cty.Value, error) {
	sec, ok := s.vals[section]
	if !ok {
		return cty.NilVal, &MissingKeyError{Section: section}
	}
	v, ok := sec[key]
	if !ok {
		return cty.NilVal, &MissingKeyError{Section: section, Key: key}
	}
	return v, nil
}

// Set writes section.key = value, creating the section block if needed.
func (s *Store) Set(section, key string, value cty.Value) {
	block := s.file.Body().FirstMatchingBlock(section, nil)
	if block == nil {
		s.file.Body().AppendNewline()
		block = s.file.Body().AppendNewBlock(section, nil)
	}
	block.Body().SetAttributeValue(key, value)

	sec := s.vals[section]
	if sec == nil {
		sec = make(map[string]cty.Value)
		s.vals[section] = sec
	}
	sec[key] = value
}

// SetAll writes every key of the given map into the section.
func (s *Store) SetAll(section string, values map[string]cty.Value) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(section, k, values[k])
	}
}

// RemoveSection deletes a section and all its keys. Removing a section that
// does not exist is a no-op.
func (s *Store) RemoveSection(section string) {
	for {
		block := s.file.Body().FirstMatchingBlock(section, nil)
		if block == nil {
			break
		}
		s.file.Body().RemoveBlock(block)
	}
	delete(s.vals, section)
}

// Clone returns an independent copy of the store that will save to path.
// Mutations to the clone never touch the receiver.
func (s *Store) Clone(path string) (*Store, error) {
	c, err := Parse(s.file.Bytes(), path)
	if err != nil {
		return nil, err
	}
	c.path = path
	return c, nil
}

// Bytes renders the store to formatted HCL source.
func (s *Store) Bytes() []byte {
	return s.file.Bytes()
}

// Save writes the store back to the path it was loaded from. The write is
// atomic at file granularity only; there is no cross-file transaction.
func (s *Store) Save() error {
	return s.SaveAs(s.path)
}

// SaveAs writes the store to an arbitrary path.
func (s *Store) SaveAs(path string) error {
	if path == "" {
		return fmt.Errorf("config store has no target path")
	}
	if err := os.WriteFile(path, s.file.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Package registry holds the Item descriptors the compilers consult.
// Descriptors are loaded once (from YAML or code), completed with the
// system attributes every Item carries, validated, and never mutated
// afterwards.
package registry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/borisblack/scicms-client-sub000/internal/validation"
	"github.com/borisblack/scicms-client-sub000/types"
)

// systemAttributes are injected into every Item that does not declare them
var systemAttributes = map[string]types.Attribute{
	types.AttrID:         {Type: types.TypeUUID, ReadOnly: true},
	types.AttrConfigID:   {Type: types.TypeString, ReadOnly: true, ColHidden: true, FieldHidden: true},
	types.AttrMajorRev:   {Type: types.TypeString},
	types.AttrMinorRev:   {Type: types.TypeString},
	types.AttrLocale:     {Type: types.TypeString},
	types.AttrCurrent:    {Type: types.TypeBool, ReadOnly: true},
	types.AttrLockedBy:   {Type: types.TypeString, ReadOnly: true},
	types.AttrPermission: {Type: types.TypeString},
	types.AttrLifecycle:  {Type: types.TypeString},
	types.AttrState:      {Type: types.TypeString, ReadOnly: true},
	types.AttrCreatedAt:  {Type: types.TypeDateTime, ReadOnly: true},
	types.AttrCreatedBy:  {Type: types.TypeString, ReadOnly: true},
	types.AttrUpdatedAt:  {Type: types.TypeDateTime, ReadOnly: true},
	types.AttrUpdatedBy:  {Type: types.TypeString, ReadOnly: true},
}

// IsSystemAttribute reports whether name is one of the injected metadata fields
func IsSystemAttribute(name string) bool {
	_, ok := systemAttributes[name]
	return ok
}

// Registry is the read-only catalog of Item descriptors
type Registry struct {
	items map[string]*types.Item
}

// New builds a registry from in-memory descriptors
func New(items ...types.Item) (*Registry, error) {
	byName := make(map[string]*types.Item, len(items))
	for i := range items {
		item := complete(items[i])
		if _, exists := byName[item.Name]; exists {
			return nil, &types.SchemaError{Item: item.Name, Reason: "item is defined twice"}
		}
		byName[item.Name] = item
	}

	if err := validation.Validate(byName); err != nil {
		return nil, err
	}
	return &Registry{items: byName}, nil
}

// MustNew is New for fixtures and tests; it panics on invalid schemas
func MustNew(items ...types.Item) *Registry {
	r, err := New(items...)
	if err != nil {
		panic(err)
	}
	return r
}

// Load reads descriptors from a YAML file or from every *.yaml/*.yml file
// of a directory. A file may hold several YAML documents.
func Load(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat schema path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files = files[:0]
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema directory: %w", err)
		}
		for _, entry := range entries {
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(files)
	}

	var items []types.Item
	for _, file := range files {
		loaded, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		items = append(items, loaded...)
	}
	return New(items...)
}

// loadFile decodes every YAML document of a file
func loadFile(path string) ([]types.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer func() { _ = f.Close() }()

	items, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Decode reads a stream of YAML documents, each one Item descriptor
func Decode(r io.Reader) ([]types.Item, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var items []types.Item
	for {
		var item types.Item
		err := dec.Decode(&item)
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse item descriptor: %w", err)
		}
		items = append(items, item)
	}
}

// GetByName returns the named Item. The result is shared and must not be modified.
func (r *Registry) GetByName(name string) (*types.Item, error) {
	item, ok := r.items[name]
	if !ok {
		return nil, &types.SchemaError{Item: name, Reason: "unknown item"}
	}
	return item, nil
}

// Names returns all item names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// complete copies the descriptor and adds missing system attributes
func complete(item types.Item) *types.Item {
	attrs := make(map[string]types.Attribute, len(item.Spec.Attributes)+len(systemAttributes))
	for name, attr := range systemAttributes {
		attrs[name] = attr
	}
	for name, attr := range item.Spec.Attributes {
		attrs[name] = attr
	}
	item.Spec.Attributes = attrs
	if item.PluralName == "" {
		item.PluralName = item.Name + "s"
	}
	return &item
}

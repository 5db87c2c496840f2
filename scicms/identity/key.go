// Package identity derives the keys open views are tracked under and
// rewrites them as drafts become persisted entities.
package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Separator joins the parts of a view key. Item names, view kinds, ids
// and suffixes never contain it, which keeps keys unambiguous.
const Separator = "#"

// Common view kinds
const (
	KindView    = "view"
	KindDefault = "default"
)

// ViewKey identifies one open view: itemName#viewKind#id[#suffix].
// A draft has no id; its per-item ordinal takes the id's place.
type ViewKey struct {
	Item    string
	Kind    string
	ID      string
	Ordinal int
	Suffix  string
}

// IsDraft reports whether the view shows an unsaved entity
func (k ViewKey) IsDraft() bool {
	return k.ID == ""
}

// String renders the key
func (k ViewKey) String() string {
	ident := k.ID
	if ident == "" {
		ident = strconv.Itoa(k.Ordinal)
	}
	return Key(k.Item, k.Kind, ident, k.Suffix)
}

// WithID returns the persisted form of the key
func (k ViewKey) WithID(id string) ViewKey {
	k.ID = id
	k.Ordinal = 0
	return k
}

// Key joins the key parts; an empty suffix is omitted
func Key(item, kind, ident, suffix string) string {
	parts := []string{item, kind, ident}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, Separator)
}

// Suffix returns a deterministic hash of a view context, so views of the
// same entity that differ only by context get different keys. An empty
// context yields an empty suffix.
func Suffix(context map[string]interface{}) string {
	if len(context) == 0 {
		return ""
	}
	// encoding/json writes map keys in sorted order
	b, err := json.Marshal(context)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", context))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

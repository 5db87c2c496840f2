// Package storage provides the persistence primitives shared by the local
// backend: the on-disk data layout and the read/write lock manager.
package storage

import (
	"time"

	"github.com/borisblack/scicms-client-sub000/types"
)

// FormatVersion is written into new data files
const FormatVersion = "1.0"

// StoreData is the complete content of a local store file: every row of
// every item, keyed by item name.
type StoreData struct {
	Items    map[string][]types.ItemData `json:"items"`
	Metadata Metadata                    `json:"metadata"`
}

// Metadata contains storage metadata
type Metadata struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStoreData returns an empty data set stamped with now
func NewStoreData(now time.Time) *StoreData {
	return &StoreData{
		Items: make(map[string][]types.ItemData),
		Metadata: Metadata{
			Version:   FormatVersion,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Rows returns the rows of one item
func (d *StoreData) Rows(item string) []types.ItemData {
	return d.Items[item]
}

// SetRows replaces the rows of one item
func (d *StoreData) SetRows(item string, rows []types.ItemData) {
	if d.Items == nil {
		d.Items = make(map[string][]types.ItemData)
	}
	d.Items[item] = rows
}

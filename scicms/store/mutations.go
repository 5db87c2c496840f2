package store

import (
	"sort"
	"strconv"
	"strings"

	"github.com/borisblack/scicms-client-sub000/types"
)

// revisionPrefix starts every automatically assigned major revision
const revisionPrefix = "v"

func (s *Store) create(item *types.Item, op *types.Operation) (*types.Response, bool) {
	row := make(types.ItemData, len(op.Data)+8)
	for k, v := range op.Data {
		row[k] = v
	}

	id := s.idFunc()
	row[types.AttrID] = id
	row[types.AttrConfigID] = id
	row[types.AttrCurrent] = true

	if item.Versioned {
		if item.ManualVersioning {
			if row.MajorRev() == "" {
				return failed("majorRev is required for %s", item.Name), false
			}
		} else {
			row[types.AttrMajorRev] = revisionPrefix + "1"
		}
	}
	if item.Localized && row.Locale() == "" {
		row[types.AttrLocale] = DefaultLocale
	}
	s.stamp(row, true)

	s.data.SetRows(item.Name, append(s.data.Rows(item.Name), row))
	return &types.Response{Data: []types.ItemData{s.project(item, row, op.Selection)}}, true
}

func (s *Store) createVersion(item *types.Item, op *types.Operation) (*types.Response, bool) {
	source := s.findRow(item.Name, op.ID)
	if source == nil {
		return notFound(item, op.ID), false
	}

	configID := source.ConfigID()
	majorRev := op.MajorRev
	if !item.ManualVersioning {
		majorRev = s.nextRevision(item, configID)
	}
	for _, sibling := range s.data.Rows(item.Name) {
		if sibling.ConfigID() == configID && sibling.MajorRev() == majorRev {
			return failed("%s %s already has revision %s", item.Name, configID, majorRev), false
		}
	}

	locale := source.Locale()
	if op.Locale != "" {
		locale = op.Locale
	}

	row := s.derive(item, source, op)
	row[types.AttrMajorRev] = majorRev
	if item.Localized {
		row[types.AttrLocale] = locale
	}
	row[types.AttrCurrent] = true

	rows := s.data.Rows(item.Name)
	for i, sibling := range rows {
		if sibling.ConfigID() == configID && sibling.Locale() == locale && sibling.Current() {
			updated := sibling.Clone()
			updated[types.AttrCurrent] = false
			rows[i] = updated
		}
	}
	s.data.SetRows(item.Name, append(rows, row))
	return &types.Response{Data: []types.ItemData{s.project(item, row, op.Selection)}}, true
}

func (s *Store) createLocalization(item *types.Item, op *types.Operation) (*types.Response, bool) {
	source := s.findRow(item.Name, op.ID)
	if source == nil {
		return notFound(item, op.ID), false
	}

	for _, sibling := range s.data.Rows(item.Name) {
		if sibling.ConfigID() == source.ConfigID() && sibling.MajorRev() == source.MajorRev() && sibling.Locale() == op.Locale {
			return failed("%s %s already has a %s localization", item.Name, source.ConfigID(), op.Locale), false
		}
	}

	row := s.derive(item, source, op)
	row[types.AttrLocale] = op.Locale
	row[types.AttrCurrent] = source.Current()

	s.data.SetRows(item.Name, append(s.data.Rows(item.Name), row))
	return &types.Response{Data: []types.ItemData{s.project(item, row, op.Selection)}}, true
}

// derive copies source into a new row with op.Data applied on top. Owned
// collection relations are carried over only when requested.
func (s *Store) derive(item *types.Item, source types.ItemData, op *types.Operation) types.ItemData {
	row := source.Clone()
	if !op.CopyCollectionRelations {
		for name, attr := range item.Spec.Attributes {
			if attr.IsCollection() {
				delete(row, name)
			}
		}
	}
	for k, v := range op.Data {
		row[k] = v
	}
	row[types.AttrID] = s.idFunc()
	row[types.AttrConfigID] = source.ConfigID()
	delete(row, types.AttrLockedBy)
	s.stamp(row, true)
	return row
}

func (s *Store) update(item *types.Item, op *types.Operation) (*types.Response, bool) {
	i := s.rowIndex(item.Name, op.ID)
	if i < 0 {
		return notFound(item, op.ID), false
	}
	rows := s.data.Rows(item.Name)
	if by := rows[i].LockedBy(); by != "" && by != s.actor {
		return failed("%s %s is locked by %s", item.Name, op.ID, by), false
	}

	row := rows[i].Clone()
	for k, v := range op.Data {
		row[k] = v
	}
	s.stamp(row, false)
	rows[i] = row
	return &types.Response{Data: []types.ItemData{s.project(item, row, op.Selection)}}, true
}

func (s *Store) delete(item *types.Item, op *types.Operation) (*types.Response, bool) {
	row := s.findRow(item.Name, op.ID)
	if row == nil {
		return notFound(item, op.ID), false
	}
	return s.remove(item, []types.ItemData{row}, op)
}

// purge deletes every version and localization sharing the row's configId
func (s *Store) purge(item *types.Item, op *types.Operation) (*types.Response, bool) {
	row := s.findRow(item.Name, op.ID)
	if row == nil {
		return notFound(item, op.ID), false
	}
	var family []types.ItemData
	for _, r := range s.data.Rows(item.Name) {
		if r.ConfigID() == row.ConfigID() {
			family = append(family, r)
		}
	}

	resp, changed := s.remove(item, family, op)
	if changed {
		n := len(resp.Data)
		resp.Pagination = &types.Pagination{Page: 1, PageCount: 1, PageSize: n, Total: n}
	}
	return resp, changed
}

// remove deletes rows of item honoring the deleting strategy for records
// that reference them. The projected removed rows are returned.
func (s *Store) remove(item *types.Item, rows []types.ItemData, op *types.Operation) (*types.Response, bool) {
	doomed := make(map[string]map[string]bool)
	mark := func(itemName, id string) bool {
		if doomed[itemName] == nil {
			doomed[itemName] = make(map[string]bool)
		}
		if doomed[itemName][id] {
			return false
		}
		doomed[itemName][id] = true
		return true
	}

	type ref struct{ item, id string }
	var queue []ref
	for _, r := range rows {
		mark(item.Name, r.ID())
		queue = append(queue, ref{item.Name, r.ID()})
	}

	// compute the full set of rows to delete before touching anything
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, back := range s.referencing(cur.item, cur.id) {
			if doomed[back.item][back.row.ID()] {
				continue
			}
			switch op.DeletingStrategy {
			case types.Cascade:
				if mark(back.item, back.row.ID()) {
					queue = append(queue, ref{back.item, back.row.ID()})
				}
			case types.SetNull:
			default:
				return failed("cannot delete %s %s: referenced by %s %s", cur.item, cur.id, back.item, back.row.ID()), false
			}
		}
	}

	var removed []types.ItemData
	for itemName, ids := range doomed {
		var kept []types.ItemData
		for _, r := range s.data.Rows(itemName) {
			if ids[r.ID()] {
				if itemName == item.Name {
					removed = append(removed, s.project(item, r, op.Selection))
				}
				continue
			}
			kept = append(kept, r)
		}
		s.data.SetRows(itemName, kept)
	}

	if op.DeletingStrategy == types.SetNull {
		s.clearReferences(doomed)
	}
	for itemName := range doomed {
		if desc, err := s.schema.GetByName(itemName); err == nil && desc.Versioned {
			s.restoreCurrent(itemName)
		}
	}

	sort.SliceStable(removed, func(i, j int) bool { return removed[i].ID() < removed[j].ID() })
	return &types.Response{Data: removed}, true
}

type backRef struct {
	item string
	attr string
	row  types.ItemData
}

// referencing lists rows holding an owning relation to itemName/id
func (s *Store) referencing(itemName, id string) []backRef {
	var refs []backRef
	for _, name := range s.schema.Names() {
		desc, err := s.schema.GetByName(name)
		if err != nil {
			continue
		}
		for _, attrName := range desc.AttributeNames() {
			attr := desc.Spec.Attributes[attrName]
			if targetItem(attr) != itemName || attr.MappedBy != "" {
				continue
			}
			for _, row := range s.data.Rows(name) {
				if refersTo(row, attrName, attr, id) {
					refs = append(refs, backRef{item: name, attr: attrName, row: row})
				}
			}
		}
	}
	return refs
}

func refersTo(row types.ItemData, name string, attr types.Attribute, id string) bool {
	if attr.IsCollection() {
		for _, ref := range idsOf(row[name]) {
			if ref == id {
				return true
			}
		}
		return false
	}
	return row.RelationID(name) == id
}

// clearReferences nulls single references and drops collection entries
// pointing at removed rows
func (s *Store) clearReferences(doomed map[string]map[string]bool) {
	for _, name := range s.schema.Names() {
		desc, err := s.schema.GetByName(name)
		if err != nil {
			continue
		}
		rows := s.data.Rows(name)
		for i, row := range rows {
			var updated types.ItemData
			for _, attrName := range desc.AttributeNames() {
				attr := desc.Spec.Attributes[attrName]
				ids := doomed[targetItem(attr)]
				if len(ids) == 0 || attr.MappedBy != "" {
					continue
				}
				if attr.IsCollection() {
					refs := idsOf(row[attrName])
					kept := make([]string, 0, len(refs))
					for _, ref := range refs {
						if !ids[ref] {
							kept = append(kept, ref)
						}
					}
					if len(kept) != len(refs) {
						if updated == nil {
							updated = row.Clone()
						}
						updated[attrName] = kept
					}
				} else if ids[row.RelationID(attrName)] {
					if updated == nil {
						updated = row.Clone()
					}
					updated[attrName] = nil
				}
			}
			if updated != nil {
				rows[i] = updated
			}
		}
	}
}

// restoreCurrent makes the newest remaining version current for every
// configId/locale group of item that lost its current row
func (s *Store) restoreCurrent(itemName string) {
	rows := s.data.Rows(itemName)
	groups := make(map[string][]int)
	for i, row := range rows {
		key := row.ConfigID() + "\x00" + row.Locale()
		groups[key] = append(groups[key], i)
	}
	for _, idx := range groups {
		newest := -1
		for _, i := range idx {
			if rows[i].Current() {
				newest = -1
				break
			}
			if newest < 0 || revisionNumber(rows[i].MajorRev()) > revisionNumber(rows[newest].MajorRev()) ||
				(revisionNumber(rows[i].MajorRev()) == revisionNumber(rows[newest].MajorRev()) && rows[i].String(types.AttrCreatedAt) > rows[newest].String(types.AttrCreatedAt)) {
				newest = i
			}
		}
		if newest >= 0 {
			updated := rows[newest].Clone()
			updated[types.AttrCurrent] = true
			rows[newest] = updated
		}
	}
}

func (s *Store) lock(item *types.Item, op *types.Operation) (*types.Response, bool) {
	i := s.rowIndex(item.Name, op.ID)
	if i < 0 {
		return notFound(item, op.ID), false
	}
	rows := s.data.Rows(item.Name)
	if by := rows[i].LockedBy(); by != "" && by != s.actor {
		return lockResult(false, s.project(item, rows[i], op.Selection)), false
	}

	row := rows[i].Clone()
	row[types.AttrLockedBy] = s.actor
	rows[i] = row
	return lockResult(true, s.project(item, row, op.Selection)), true
}

func (s *Store) unlock(item *types.Item, op *types.Operation) (*types.Response, bool) {
	i := s.rowIndex(item.Name, op.ID)
	if i < 0 {
		return notFound(item, op.ID), false
	}
	rows := s.data.Rows(item.Name)
	by := rows[i].LockedBy()
	if by != "" && by != s.actor {
		return lockResult(false, s.project(item, rows[i], op.Selection)), false
	}
	if by == "" {
		return lockResult(true, s.project(item, rows[i], op.Selection)), false
	}

	row := rows[i].Clone()
	row[types.AttrLockedBy] = nil
	rows[i] = row
	return lockResult(true, s.project(item, row, op.Selection)), true
}

func (s *Store) promoteRow(item *types.Item, op *types.Operation) (*types.Response, bool) {
	i := s.rowIndex(item.Name, op.ID)
	if i < 0 {
		return notFound(item, op.ID), false
	}
	rows := s.data.Rows(item.Name)
	if s.promote != nil {
		if err := s.promote(item, rows[i], op.State); err != nil {
			return failed("cannot promote %s %s to %s: %v", item.Name, op.ID, op.State, err), false
		}
	}

	row := rows[i].Clone()
	row[types.AttrState] = op.State
	s.stamp(row, false)
	rows[i] = row
	return &types.Response{Data: []types.ItemData{s.project(item, row, op.Selection)}}, true
}

// nextRevision returns the revision following the highest "vN" of configID
func (s *Store) nextRevision(item *types.Item, configID string) string {
	highest := 0
	for _, row := range s.data.Rows(item.Name) {
		if row.ConfigID() != configID {
			continue
		}
		if n := revisionNumber(row.MajorRev()); n > highest {
			highest = n
		}
	}
	return revisionPrefix + strconv.Itoa(highest+1)
}

// revisionNumber parses "vN"; anything else counts as 0
func revisionNumber(rev string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(rev, revisionPrefix))
	if err != nil {
		return 0
	}
	return n
}

// stamp records the audit attributes of a write
func (s *Store) stamp(row types.ItemData, created bool) {
	now := s.now()
	if created {
		row[types.AttrCreatedAt] = now
		row[types.AttrCreatedBy] = s.actor
	}
	row[types.AttrUpdatedAt] = now
	row[types.AttrUpdatedBy] = s.actor
}

func notFound(item *types.Item, id string) *types.Response {
	return failed("%s %s not found", item.Name, id)
}

func lockResult(success bool, row types.ItemData) *types.Response {
	return &types.Response{Success: &success, Data: []types.ItemData{row}}
}

package store

import (
	"sort"

	"github.com/borisblack/scicms-client-sub000/scicms/query"
	"github.com/borisblack/scicms-client-sub000/types"
)

// find filters, sorts and paginates the rows of item. Without pagination
// every match is returned as a single page.
func (s *Store) find(item *types.Item, op *types.Operation) *types.Response {
	var matched []types.ItemData
	for _, row := range s.data.Rows(item.Name) {
		if s.matches(item, row, op.Filters, 0) {
			matched = append(matched, row)
		}
	}
	sortRows(matched, op.Sort)

	total := len(matched)
	page, size := 1, total
	if op.Pagination != nil {
		if op.Pagination.Page > 0 {
			page = op.Pagination.Page
		}
		if op.Pagination.PageSize > 0 {
			size = op.Pagination.PageSize
		}
	}

	pageCount := 0
	if size > 0 {
		pageCount = (total + size - 1) / size
	}

	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	data := make([]types.ItemData, 0, end-start)
	for _, row := range matched[start:end] {
		data = append(data, s.project(item, row, op.Selection))
	}

	return &types.Response{
		Data: data,
		Pagination: &types.Pagination{
			Page:      page,
			PageCount: pageCount,
			PageSize:  size,
			Total:     total,
		},
	}
}

// sortRows orders rows by "attribute:asc|desc" tokens, first token first
func sortRows(rows []types.ItemData, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	specs := make([]types.SortSpec, len(tokens))
	for i, token := range tokens {
		specs[i] = query.ParseSortToken(token)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, spec := range specs {
			c := compareValues(rows[i][spec.AttributeID], rows[j][spec.AttributeID])
			if c == 0 {
				continue
			}
			if spec.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// project shapes a stored row into the response form described by the
// selection. Reference attributes become {"data": {...}} with the selected
// fields of the target row, or {"data": nil} when the target is missing.
func (s *Store) project(item *types.Item, row types.ItemData, selection []types.Field) types.ItemData {
	if len(selection) == 0 {
		return row.Clone()
	}

	out := make(types.ItemData, len(selection))
	for _, f := range selection {
		if f.Sub == nil {
			out[f.Name] = row[f.Name]
			continue
		}

		attr, _ := item.Attribute(f.Name)
		ref := s.findRow(targetItem(attr), row.RelationID(f.Name))
		if ref == nil {
			out[f.Name] = map[string]interface{}{"data": nil}
			continue
		}
		fields := make(map[string]interface{}, len(f.Sub))
		for _, name := range f.Sub {
			fields[name] = ref[name]
		}
		out[f.Name] = types.Ref(fields)
	}
	return out
}

package storage

import "fmt"

// PageID names a single physical page: a table's name, the page range it
// belongs to, whether it sits in the base or tail area, its ordinal
// within that area, and the column it holds.
type PageID struct {
	Table      string
	RangeIndex int
	IsTail     bool
	PageIndex  int
	Column     int
}

// String renders the identifier the same way it is used to build a file
// path, which is convenient for logging and map keys in tests.
func (id PageID) String() string {
	area := "base"
	if id.IsTail {
		area = "tail"
	}
	return fmt.Sprintf("%s/page_range_%d/%s_%d_%d", id.Table, id.RangeIndex, area, id.PageIndex, id.Column)
}

package base

import "fmt"

// RID identifies a tuple by the page it lives on and its slot within
// that page.
type RID struct {
	PageID PageID
	Slot   uint32
}

// NewRID builds a record id from a page id and slot number.
func NewRID(pageID PageID, slot uint32) RID {
	return RID{PageID: pageID, Slot: slot}
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.Slot)
}

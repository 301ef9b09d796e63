package roda

import (
	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda/stream"
)

// ReturnStackItemBinarySize is the serialized size of one ReturnStackItem.
const ReturnStackItemBinarySize = 8

// MaxReturnStackItems is the maximum depth of a ReturnStack.
const MaxReturnStackItems = 255

// ReturnStackItem is pushed onto a request by every hop that needs to route
// the response back. The meaning of ID and Info is private to the hop.
type ReturnStackItem struct {
	ID   uint32
	Info uint32
}

// ReturnStack travels with a request and is copied into its response.
type ReturnStack struct {
	items []ReturnStackItem
}

// Push adds item on top.
func (rs *ReturnStack) Push(item ReturnStackItem) error {
	if len(rs.items) >= MaxReturnStackItems {
		return errors.Errorf("return stack full")
	}
	rs.items = append(rs.items, item)
	return nil
}

// Pop removes and returns the top item.
func (rs *ReturnStack) Pop() (ReturnStackItem, error) {
	if len(rs.items) == 0 {
		return ReturnStackItem{}, errors.Errorf("return stack empty")
	}
	item := rs.items[len(rs.items)-1]
	rs.items = rs.items[:len(rs.items)-1]
	return item, nil
}

// Top returns the top item without removing it.
func (rs *ReturnStack) Top() (ReturnStackItem, bool) {
	if len(rs.items) == 0 {
		return ReturnStackItem{}, false
	}
	return rs.items[len(rs.items)-1], true
}

// Len returns the number of items.
func (rs *ReturnStack) Len() int {
	return len(rs.items)
}

// Items returns a copy of the items, bottom first.
func (rs *ReturnStack) Items() []ReturnStackItem {
	return append([]ReturnStackItem(nil), rs.items...)
}

// Set replaces the content of the stack with a copy of items. Providers use
// it to move a request's stack into its response.
func (rs *ReturnStack) Set(items []ReturnStackItem) {
	rs.items = append([]ReturnStackItem(nil), items...)
}

// BinarySize returns the serialized size of the items, not counting the
// item count prefix.
func (rs *ReturnStack) BinarySize() int {
	return len(rs.items) * ReturnStackItemBinarySize
}

func (rs *ReturnStack) encode(w *stream.Writer) error {
	if err := w.WriteUint8(uint8(len(rs.items))); err != nil {
		return err
	}
	for _, item := range rs.items {
		if err := w.WriteUint32(item.ID); err != nil {
			return err
		}
		if err := w.WriteUint32(item.Info); err != nil {
			return err
		}
	}
	return nil
}

func (rs *ReturnStack) decode(r *stream.Reader) error {
	n, err := r.ReadUint8()
	if err != nil {
		return err
	}
	rs.items = make([]ReturnStackItem, n)
	for i := range rs.items {
		if rs.items[i].ID, err = r.ReadUint32(); err != nil {
			return err
		}
		if rs.items[i].Info, err = r.ReadUint32(); err != nil {
			return err
		}
	}
	return nil
}

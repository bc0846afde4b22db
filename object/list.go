package object

import (
	"fmt"
	"strings"

	"github.com/mulang-project/mulang/value"
	"github.com/mulang-project/mulang/vmerr"
)

// List is a mutable, ordered sequence of Values.
type List struct {
	baseObject
	items []value.Value
}

// NewList constructs a List taking ownership of items (the caller
// must have already retained each one on the heap).
func NewList(items []value.Value) *List {
	return &List{items: items}
}

func (l *List) TypeID() TypeID   { return TypeList }
func (l *List) TypeName() string { return "list" }
func (l *List) IsFrozen() bool   { return false }

func (l *List) Display(h *Heap) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range l.items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Display(h, v))
	}
	b.WriteByte(']')
	return b.String()
}

func (l *List) Debug(h *Heap) string { return l.Display(h) }

// Len returns the number of elements.
func (l *List) Len() int { return len(l.items) }

// Push appends v (the caller retains it first).
func (l *List) Push(v value.Value) { l.items = append(l.items, v) }

// At returns the element at index i.
func (l *List) At(i int) (value.Value, bool) {
	if i < 0 || i >= len(l.items) {
		return value.Value{}, false
	}
	return l.items[i], true
}

// Set overwrites the element at index i, releasing the value it
// displaces; Set does not retain v, so the caller must already have
// retained v for this assignment.
func (l *List) Set(heap *Heap, i int, v value.Value) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	heap.Release(l.items[i])
	l.items[i] = v
	return true
}

func (l *List) GetField(name string) (value.Value, bool) {
	if name == "len" {
		return value.Int(int32(len(l.items))), true
	}
	return value.Value{}, false
}

// GetIndex implements Indexer: only integer keys are valid (spec
// §4.6.1 "LoadIndex ... must be int, bool, or string-like").
func (l *List) GetIndex(key value.Value) (value.Value, error) {
	i, ok := key.AsInt()
	if !ok {
		return value.Value{}, fmt.Errorf("%w: list index must be an int", vmerr.ErrTypeError)
	}
	v, ok := l.At(int(i))
	if !ok {
		return value.Value{}, fmt.Errorf("%w: list index %d out of range (len %d)", vmerr.ErrRuntimeError, i, len(l.items))
	}
	return v, nil
}

// SetIndex implements Indexer.
func (l *List) SetIndex(heap *Heap, key value.Value, v value.Value) error {
	i, ok := key.AsInt()
	if !ok {
		return fmt.Errorf("%w: list index must be an int", vmerr.ErrTypeError)
	}
	heap.Retain(v)
	if !l.Set(heap, int(i), v) {
		heap.Release(v)
		return fmt.Errorf("%w: list index %d out of range (len %d)", vmerr.ErrRuntimeError, i, len(l.items))
	}
	return nil
}

// Drop releases every contained Value, cascading the heap's
// refcounting through nested objects.
func (l *List) Drop(h *Heap) {
	for _, v := range l.items {
		h.Release(v)
	}
}

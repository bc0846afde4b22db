package object

import (
	"fmt"
	"strings"

	"github.com/mulang-project/mulang/value"
	"github.com/mulang-project/mulang/vmerr"
)

// Key is a restricted, hashable dict/field key: an int, a string, or
// an interned string reference (spec §3.3 "Keys are restricted to
// int, string, or interned string reference").
type Key struct {
	kind keyKind
	i    int32
	s    string
}

type keyKind uint8

const (
	keyInt keyKind = iota
	keyStr
)

// IntKey builds an integer dict key.
func IntKey(i int32) Key { return Key{kind: keyInt, i: i} }

// StrKey builds a string dict key.
func StrKey(s string) Key { return Key{kind: keyStr, s: s} }

// KeyFromValue extracts a Key from a Value, per the restriction in
// spec §3.3: only int and string-like values qualify.
func KeyFromValue(h *Heap, v value.Value) (Key, error) {
	if i, ok := v.AsInt(); ok {
		return IntKey(i), nil
	}
	if obj, ok := h.From(v); ok {
		if s, ok := obj.(*Str); ok {
			return StrKey(s.String()), nil
		}
	}
	return Key{}, fmt.Errorf("%w: dict key must be an int or a string", vmerr.ErrTypeError)
}

func (k Key) String() string {
	if k.kind == keyInt {
		return fmt.Sprintf("%d", k.i)
	}
	return k.s
}

// Dict is an insertion-ordered mapping from Key to Value.
type Dict struct {
	baseObject
	order []Key
	items map[Key]value.Value
}

// NewDict constructs an empty, insertion-ordered Dict.
func NewDict() *Dict {
	return &Dict{items: make(map[Key]value.Value)}
}

func (d *Dict) TypeID() TypeID   { return TypeDict }
func (d *Dict) TypeName() string { return "dict" }
func (d *Dict) IsFrozen() bool   { return false }

func (d *Dict) Display(h *Heap) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range d.order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.String())
		b.WriteString(": ")
		b.WriteString(Display(h, d.items[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func (d *Dict) Debug(h *Heap) string { return d.Display(h) }

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.order) }

// Entry is one insertion-ordered (key, value) pair, returned by Items
// for callers (class instantiation, iteration) that need to walk the
// whole dict in insertion order.
type Entry struct {
	Key   Key
	Value value.Value
}

// Items returns every entry in insertion order.
func (d *Dict) Items() []Entry {
	entries := make([]Entry, len(d.order))
	for i, k := range d.order {
		entries[i] = Entry{Key: k, Value: d.items[k]}
	}
	return entries
}

// Contains reports whether k is present.
func (d *Dict) Contains(k Key) bool {
	_, ok := d.items[k]
	return ok
}

// Get looks up a key without modifying insertion order.
func (d *Dict) Get(k Key) (value.Value, bool) {
	v, ok := d.items[k]
	return v, ok
}

// Insert sets key k to v, appending k to the insertion order on first
// use and releasing the previous value, if any. Retaining v is the
// caller's responsibility before calling Insert.
func (d *Dict) Insert(heap *Heap, k Key, v value.Value) {
	if old, ok := d.items[k]; ok {
		heap.Release(old)
	} else {
		d.order = append(d.order, k)
	}
	d.items[k] = v
}

// GetIndex implements Indexer.
func (d *Dict) GetIndex(key value.Value) (value.Value, error) {
	// KeyFromValue needs a heap to resolve string objects; GetIndex's
	// Indexer signature does not carry one, so LoadIndex in the VM
	// resolves the key itself and calls GetByKey directly. This method
	// only exists to satisfy Indexer for int keys, the common case.
	i, ok := key.AsInt()
	if !ok {
		return value.Value{}, fmt.Errorf("%w: use GetByKey for non-int dict keys", vmerr.ErrTypeError)
	}
	v, ok := d.Get(IntKey(i))
	if !ok {
		return value.Value{}, fmt.Errorf("%w: key %d not found", vmerr.ErrNameError, i)
	}
	return v, nil
}

// SetIndex implements Indexer for int keys; see GetIndex's note.
func (d *Dict) SetIndex(heap *Heap, key value.Value, v value.Value) error {
	i, ok := key.AsInt()
	if !ok {
		return fmt.Errorf("%w: use SetByKey for non-int dict keys", vmerr.ErrTypeError)
	}
	heap.Retain(v)
	d.Insert(heap, IntKey(i), v)
	return nil
}

// GetByKey and SetByKey are the heap-aware counterparts LoadIndex
// actually calls, supporting string keys as well as int keys.
func (d *Dict) GetByKey(h *Heap, keyVal value.Value) (value.Value, error) {
	k, err := KeyFromValue(h, keyVal)
	if err != nil {
		return value.Value{}, err
	}
	v, ok := d.Get(k)
	if !ok {
		return value.Value{}, fmt.Errorf("%w: key %s not found", vmerr.ErrNameError, k)
	}
	return v, nil
}

func (d *Dict) SetByKey(h *Heap, keyVal value.Value, v value.Value) error {
	k, err := KeyFromValue(h, keyVal)
	if err != nil {
		return err
	}
	h.Retain(v)
	d.Insert(h, k, v)
	return nil
}

func (d *Dict) GetField(name string) (value.Value, bool) {
	if name == "len" {
		return value.Int(int32(len(d.order))), true
	}
	return d.Get(StrKey(name))
}

func (d *Dict) SetField(heap *Heap, name string, v value.Value) error {
	heap.Retain(v)
	d.Insert(heap, StrKey(name), v)
	return nil
}

// Drop releases every contained Value.
func (d *Dict) Drop(h *Heap) {
	for _, v := range d.items {
		h.Release(v)
	}
}

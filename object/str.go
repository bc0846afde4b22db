package object

import (
	"fmt"

	"github.com/mulang-project/mulang/value"
)

// Str is an immutable UTF-8 string object.
type Str struct {
	baseObject
	s string
}

// NewStr constructs a Str object.
func NewStr(s string) *Str { return &Str{s: s} }

func (s *Str) TypeID() TypeID   { return TypeStr }
func (s *Str) TypeName() string { return "str" }
func (s *Str) IsFrozen() bool   { return true }
func (s *Str) Display(*Heap) string { return s.s }
func (s *Str) Debug(*Heap) string   { return fmt.Sprintf("%q", s.s) }

// String returns the underlying Go string.
func (s *Str) String() string { return s.s }

// Len returns the string's length in bytes, matching the `len` field
// described in spec §3.3.
func (s *Str) Len() int { return len(s.s) }

// GetField exposes the read-only `len` field; strings have no other
// fields and no setter (they are immutable, per spec §3.3).
func (s *Str) GetField(name string) (value.Value, bool) {
	if name == "len" {
		return value.Int(int32(len(s.s))), true
	}
	return value.Value{}, false
}

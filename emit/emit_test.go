package emit_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mulang-project/mulang/emit"
	"github.com/mulang-project/mulang/object"
	"github.com/mulang-project/mulang/syntax"
	"github.com/mulang-project/mulang/vmerr"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

// manyLocalsSource builds a single zero-arg function declaring n
// distinct locals, each getting its own register (spec's own Boundary
// test case: "a function using exactly 256 virtual registers
// compiles; 257 yields EmitError").
func manyLocalsSource(n int) string {
	var b strings.Builder
	b.WriteString("fn f():\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  let a%d = 0\n", i)
	}
	b.WriteString("f()\n")
	return b.String()
}

func compile(t *testing.T, source string) (*object.FunctionDescriptor, error) {
	t.Helper()
	mod, err := syntax.Parse(source)
	assert(t, err == nil, "parse error: %v", err)
	heap := object.NewHeap()
	return emit.EmitModule(heap, mod, "<test>")
}

func TestRegisterCeilingAt256Compiles(t *testing.T) {
	_, err := compile(t, manyLocalsSource(256))
	assert(t, err == nil, "256 registers should compile, got %v", err)
}

func TestRegisterCeilingAt257IsEmitError(t *testing.T) {
	_, err := compile(t, manyLocalsSource(257))
	assert(t, err != nil, "257 registers should fail to emit")
	assert(t, errors.Is(err, vmerr.ErrEmitError), "expected an ErrEmitError, got %v", err)
}

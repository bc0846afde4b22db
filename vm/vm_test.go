package vm_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mulang-project/mulang/emit"
	"github.com/mulang-project/mulang/object"
	"github.com/mulang-project/mulang/syntax"
	"github.com/mulang-project/mulang/vm"
	"github.com/mulang-project/mulang/vmerr"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

// compileAndRun parses, emits and runs source, returning its display
// result and captured stdout, matching the teacher's own
// assert+literal-source table-test shape (vm/vm_test.go in the
// teacher repo).
func compileAndRun(t *testing.T, source string) (string, string) {
	t.Helper()
	mod, err := syntax.Parse(strings.TrimLeft(source, "\n"))
	assert(t, err == nil, "parse error: %v", err)

	heap := object.NewHeap()
	fd, err := emit.EmitModule(heap, mod, "<test>")
	assert(t, err == nil, "emit error: %v", err)

	var out bytes.Buffer
	isolate := vm.NewIsolate(&out, &out, nil)
	isolate.Heap = heap

	result, err := isolate.Run(fd)
	assert(t, err == nil, "run error: %v", err)
	return object.Display(isolate.Heap, result), out.String()
}

func TestArithmetic(t *testing.T) {
	_, stdout := compileAndRun(t, "print 2 + 2\n")
	assert(t, stdout == "4\n", "got stdout %q", stdout)
}

func TestPowerOperator(t *testing.T) {
	_, stdout := compileAndRun(t, "print 2 ** 10\n")
	assert(t, stdout == "1024\n", "got stdout %q", stdout)
}

func TestCoalesceOperator(t *testing.T) {
	_, stdout := compileAndRun(t, "print none ?? 2\nprint 2 ?? none\n")
	assert(t, stdout == "2\n2\n", "got stdout %q", stdout)
}

func TestCoalesceKeepsFalsyNonNone(t *testing.T) {
	_, stdout := compileAndRun(t, "print 0 ?? 5\n")
	assert(t, stdout == "0\n", "?? should only test none-ness, got %q", stdout)
}

func TestLetAndPrintSum(t *testing.T) {
	_, stdout := compileAndRun(t, "let a = 1\nlet b = 2\nprint a + b\n")
	assert(t, stdout == "3\n", "got stdout %q", stdout)
}

func TestWhileLoop(t *testing.T) {
	src := "let i = 0\nwhile i < 3:\n  print i\n  i = i + 1\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "0\n1\n2\n", "got stdout %q", stdout)
}

func TestClassMethodCall(t *testing.T) {
	src := "class P:\n  fn hi(self):\n    print \"hi\"\nP().hi()\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "hi\n", "got stdout %q", stdout)
}

func TestForRangeLoopExclusive(t *testing.T) {
	src := "for i in 0..3:\n  print i\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "0\n1\n2\n", "got stdout %q", stdout)
}

func TestForRangeLoopInclusive(t *testing.T) {
	src := "for i in 0..=2:\n  print i\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "0\n1\n2\n", "got stdout %q", stdout)
}

func TestIfElifElse(t *testing.T) {
	src := "let x = 2\n" +
		"if x == 1:\n  print \"one\"\nelif x == 2:\n  print \"two\"\nelse:\n  print \"other\"\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "two\n", "got stdout %q", stdout)
}

func TestBreakAndContinue(t *testing.T) {
	src := "let i = 0\nlet sum = 0\nwhile true:\n  i = i + 1\n  if i > 5:\n    break\n  if i == 3:\n    continue\n  sum = sum + i\nprint sum\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "12\n", "got stdout %q", stdout)
}

func TestClosureCapturesLocal(t *testing.T) {
	src := "fn makeAdder(x):\n  fn add(y):\n    return x + y\n  return add\n" +
		"let add5 = makeAdder(5)\nprint add5(3)\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "8\n", "got stdout %q", stdout)
}

func TestClassInheritanceOverridesMethod(t *testing.T) {
	src := "class Animal:\n  fn speak(self):\n    print \"...\"\n" +
		"class Dog(Animal):\n  fn speak(self):\n    print \"woof\"\n" +
		"Dog().speak()\nAnimal().speak()\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "woof\n...\n", "got stdout %q", stdout)
}

func TestListAndIndex(t *testing.T) {
	src := "let xs = [1, 2, 3]\nprint xs[1]\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "2\n", "got stdout %q", stdout)
}

func TestDictAndFieldLikeIndex(t *testing.T) {
	src := "let d = {\"a\": 1, \"b\": 2}\nprint d[\"b\"]\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "2\n", "got stdout %q", stdout)
}

func TestStringConcat(t *testing.T) {
	_, stdout := compileAndRun(t, "print \"foo\" + \"bar\"\n")
	assert(t, stdout == "foobar\n", "got stdout %q", stdout)
}

func TestFieldAssignment(t *testing.T) {
	src := "class Box:\n  value\n" +
		"let b = Box()\nb.value = 42\nprint b.value\n"
	_, stdout := compileAndRun(t, src)
	assert(t, stdout == "42\n", "got stdout %q", stdout)
}

func TestUndefinedGlobalIsNameError(t *testing.T) {
	mod, err := syntax.Parse("print undefinedThing\n")
	assert(t, err == nil, "parse error: %v", err)
	heap := object.NewHeap()
	fd, err := emit.EmitModule(heap, mod, "<test>")
	assert(t, err == nil, "emit error: %v", err)

	var out bytes.Buffer
	isolate := vm.NewIsolate(&out, &out, nil)
	isolate.Heap = heap
	_, err = isolate.Run(fd)
	assert(t, err != nil, "expected a NameError for an undefined global")
	assert(t, errors.Is(err, vmerr.ErrNameError), "expected a NameError, got %v", err)
}

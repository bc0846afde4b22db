// Command mulang is the host example spec §6 anticipates ("the REPL
// collaborator submits source strings through eval"): a thin cobra CLI
// over syntax.Parse + emit.EmitModule + vm.Isolate, rebuilt around
// github.com/spf13/cobra (grounded in ajroetker-goat's cobra.Command
// tree) in place of the teacher's flag-package main.go.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mulang-project/mulang/bytecode"
	"github.com/mulang-project/mulang/emit"
	"github.com/mulang-project/mulang/object"
	"github.com/mulang-project/mulang/syntax"
	"github.com/mulang-project/mulang/vm"
	"github.com/mulang-project/mulang/vmerr"
)

var (
	stackSize      int
	printBytecode  bool
	verboseLogging bool
)

func newLogger() *zap.Logger {
	if !verboseLogging {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func compile(source, name string, logger *zap.Logger) (*object.Heap, *object.FunctionDescriptor, error) {
	mod, err := syntax.Parse(source)
	if err != nil {
		return nil, nil, fmt.Errorf("parse error: %w", err)
	}
	heap := object.NewHeap()
	fd, err := emit.EmitModuleWithLogger(heap, mod, name, logger)
	if err != nil {
		return nil, nil, err
	}
	return heap, fd, nil
}

func reportError(w *os.File, err error) {
	if ve, ok := asVMErr(err); ok {
		fmt.Fprintf(w, "error: %s (span %d-%d)\n", ve.Message, ve.Span.Start, ve.Span.End)
		for _, pc := range ve.Frames {
			fmt.Fprintf(w, "  at pc=%d\n", pc)
		}
		return
	}
	fmt.Fprintf(w, "error: %s\n", err)
}

func asVMErr(err error) (*vmerr.Error, bool) {
	for err != nil {
		if ve, ok := err.(*vmerr.Error); ok {
			return ve, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

func printDisasm(out *os.File, fd *object.FunctionDescriptor) {
	text, err := bytecode.Disassemble(fd.Ops(), fd.Pool())
	if err != nil {
		fmt.Fprintf(out, "disassembly error: %s\n", err)
		return
	}
	fmt.Fprint(out, text)
}

func newEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <file>",
		Short: "compile and run a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			logger := newLogger()
			heap, fd, err := compile(string(src), args[0], logger)
			if err != nil {
				reportError(os.Stderr, err)
				return nil
			}
			if printBytecode {
				printDisasm(os.Stdout, fd)
			}
			isolate := vm.NewIsolate(os.Stdout, os.Stderr, logger)
			isolate.Heap = heap
			isolate.Reserve(stackSize)
			result, err := isolate.Run(fd)
			if err != nil {
				reportError(os.Stderr, err)
				return nil
			}
			fmt.Fprintln(os.Stdout, object.Display(isolate.Heap, result))
			return nil
		},
	}
}

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file>",
		Short: "print the bytecode for a source file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			_, fd, err := compile(string(src), args[0], newLogger())
			if err != nil {
				reportError(os.Stderr, err)
				return nil
			}
			printDisasm(os.Stdout, fd)
			return nil
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "read-eval-print loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			runRepl(os.Stdin, os.Stdout)
			return nil
		},
	}
}

// runRepl is a line-buffered loop that re-parses on an indented or
// block-opening continuation line, matching original_source's
// crates/cli/src/repl.rs read_multi_line_input/validate shape: a
// program is "complete" once the last line entered neither opens a
// new block (ends in `:`) nor continues one (is itself indented).
func runRepl(in *os.File, out *os.File) {
	logger := newLogger()
	isolate := vm.NewIsolate(out, out, logger)
	isolate.Reserve(stackSize)

	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "mulang REPL. Press Ctrl-D to exit. .print_bytecode toggles disassembly.")

	var buffer strings.Builder
	for {
		if buffer.Len() == 0 {
			fmt.Fprint(out, "> ")
		} else {
			fmt.Fprint(out, "... ")
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()

		if buffer.Len() == 0 && line == ".print_bytecode" {
			printBytecode = !printBytecode
			continue
		}

		buffer.WriteString(line)
		buffer.WriteByte('\n')

		if isIncomplete(line) {
			continue
		}

		src := buffer.String()
		buffer.Reset()

		mod, err := syntax.Parse(src)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		fd, err := emit.EmitModuleWithLogger(isolate.Heap, mod, "<repl>", logger)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if printBytecode {
			printDisasm(out, fd)
		}
		result, err := isolate.Run(fd)
		if err != nil {
			reportError(out, err)
			continue
		}
		fmt.Fprintln(out, object.Display(isolate.Heap, result))
	}
}

func isIncomplete(line string) bool {
	trimmed := strings.TrimRight(line, " \t")
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, ":") {
		return true
	}
	return line != strings.TrimLeft(line, " \t")
}

func main() {
	root := &cobra.Command{
		Use:   "mulang",
		Short: "compiler and VM driver for the mulang bytecode core",
	}
	root.PersistentFlags().IntVar(&stackSize, "stack-size", 4096, "initial value-stack capacity")
	root.PersistentFlags().BoolVar(&printBytecode, "print-bytecode", false, "print disassembled bytecode before running")
	root.PersistentFlags().BoolVar(&verboseLogging, "verbose", false, "enable VM diagnostic logging")

	root.AddCommand(newEvalCmd(), newDisasmCmd(), newReplCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

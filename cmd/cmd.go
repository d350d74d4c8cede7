package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	easy "github.com/t-tomalak/logrus-easy-formatter"

	e "github.com/bytelox/bytelox/errors"
	"github.com/bytelox/bytelox/vm"
)

const (
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func App() (app *cobra.Command) {
	app = &cobra.Command{
		Use:   "bytelox [script]",
		Short: "Launch the `bytelox` interpreter",
		Args:  cobra.MaximumNArgs(1),
	}

	app.Flags().SortFlags = true
	defaultVerbosityStr := "INFO"
	verbosity := app.Flags().StringP("verbosity", "v", defaultVerbosityStr, "Logging verbosity")

	app.RunE = func(_ *cobra.Command, args []string) error {
		verbosityLvl, err := logrus.ParseLevel(*verbosity)
		if err != nil {
			verbosityLvl, _ = logrus.ParseLevel(defaultVerbosityStr)
		}
		logrus.SetLevel(verbosityLvl)
		logrus.SetFormatter(&easy.Formatter{LogFormat: "//DBG// %msg%\n"})

		if len(args) == 1 {
			runFile(args[0])
			return nil
		}
		return repl()
	}
	return
}

// runFile interprets a whole script and exits with the conventional sysexits
// code for the outcome. Diagnostics have already been written to stderr by
// the compiler and the VM.
func runFile(path string) {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file %s.\n", path)
		os.Exit(exitIOError)
	}

	vm_ := vm.NewVM()
	err = vm_.Interpret(string(src))
	vm_.Free()

	var runtimeErr *e.RuntimeError
	switch {
	case err == nil:
	case errors.As(err, &runtimeErr):
		os.Exit(exitRuntimeError)
	default:
		os.Exit(exitCompileError)
	}
}

// repl feeds lines to a persistent VM, so globals and interned strings
// survive from one line to the next. EOF exits cleanly.
func repl() error {
	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	vm_ := vm.NewVM()
	defer vm_.Free()
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		// Diagnostics are already on stderr; the REPL just moves on.
		_ = vm_.Interpret(line + "\n")
	}
}

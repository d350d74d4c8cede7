package errors

import (
	"errors"
	"fmt"
)

// CompilationError is a single compile-time diagnostic. Its message matches
// what the compiler prints to the error sink:
//
//	[line N] Error at 'lexeme': reason
//
// Where points at the offending lexeme, is " at end" for EOF, or is empty
// when the error originated from a scanner error token.
type CompilationError struct {
	Line   int
	Where  string
	Reason string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("[line %d] Error%s: %s", e.Line, e.Where, e.Reason)
}

// RuntimeError aborts a VM run. The VM prints the reason followed by
// "[line N] in script" before returning it.
type RuntimeError struct {
	Line   int
	Reason string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s\n[line %d] in script", e.Reason, e.Line)
}

var Unreachable = errors.New("internal error: entered unreachable code")

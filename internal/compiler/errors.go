package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/banish/internal/lexer"
)

// SyntaxError is a parse failure with the best available location.
type SyntaxError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	switch {
	case e.Line > 0 && e.File != "":
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
	default:
		return e.Msg
	}
}

// fromLexError attaches the file name to a tokenizer failure.
func fromLexError(file string, err error) error {
	var lexErr *lexer.Error
	if errors.As(err, &lexErr) {
		return &SyntaxError{File: file, Line: lexErr.Line, Column: lexErr.Column, Msg: lexErr.Msg}
	}
	return err
}

// ValidationErrors is the error returned by Link when validation fails.
// It holds every violation in declaration order.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "validation failed"
	case 1:
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  %s", len(errs), strings.Join(msgs, "\n  "))
}

// First returns the first violation found.
func (errs ValidationErrors) First() ValidationError {
	return errs[0]
}

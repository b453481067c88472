package catalog

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error reports an invalid catalog entry, with the CUE source position when
// the entry came from a CUE document.
type Error struct {
	Kind    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	var where []string
	if e.Kind != "" {
		where = append(where, e.Kind)
	}
	if e.Field != "" {
		where = append(where, e.Field)
	}
	msg := e.Message
	if len(where) > 0 {
		msg = strings.Join(where, ".") + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

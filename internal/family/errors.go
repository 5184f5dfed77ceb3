package family

import (
	"errors"
	"fmt"
)

// Code is a machine-readable structural error code.
type Code string

const (
	CodeAlreadyFounded   Code = "ALREADY_FOUNDED"
	CodeUnknownParent    Code = "UNKNOWN_PARENT"
	CodeUnknownPerson    Code = "UNKNOWN_PERSON"
	CodeAlreadyMarried   Code = "ALREADY_MARRIED"
	CodeAlreadyDead      Code = "ALREADY_DEAD"
	CodeSamePerson       Code = "SAME_PERSON"
	CodeDeadParty        Code = "DEAD_PARTY"
	CodeDeadHeir         Code = "DEAD_HEIR"
	CodeUnknownTitle     Code = "UNKNOWN_TITLE"
	CodeDuplicateTitle   Code = "DUPLICATE_TITLE"
	CodeInvalidParents   Code = "INVALID_PARENTS"
	CodeDeathBeforeBirth Code = "DEATH_BEFORE_BIRTH"
	CodeDuplicatePerson  Code = "DUPLICATE_PERSON"
	CodeBirthOrder       Code = "BIRTH_OUT_OF_ORDER"
	CodeInvariant        Code = "INVARIANT_VIOLATION"
)

// Error is a structural error: a caller or data-integrity violation that
// aborts a single tree operation.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs and events)
	Metadata map[string]string // Identifiers involved
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrAlreadyFounded   = &Error{Code: CodeAlreadyFounded, Message: "dynasty already founded"}
	ErrUnknownParent    = &Error{Code: CodeUnknownParent, Message: "unknown or dead parent"}
	ErrUnknownPerson    = &Error{Code: CodeUnknownPerson, Message: "unknown person"}
	ErrAlreadyMarried   = &Error{Code: CodeAlreadyMarried, Message: "already married"}
	ErrAlreadyDead      = &Error{Code: CodeAlreadyDead, Message: "already dead"}
	ErrSamePerson       = &Error{Code: CodeSamePerson, Message: "same person"}
	ErrDeadParty        = &Error{Code: CodeDeadParty, Message: "dead party"}
	ErrDeadHeir         = &Error{Code: CodeDeadHeir, Message: "heir is dead"}
	ErrUnknownTitle     = &Error{Code: CodeUnknownTitle, Message: "unknown title"}
	ErrDuplicateTitle   = &Error{Code: CodeDuplicateTitle, Message: "title already exists"}
	ErrInvalidParents   = &Error{Code: CodeInvalidParents, Message: "invalid parents"}
	ErrDeathBeforeBirth = &Error{Code: CodeDeathBeforeBirth, Message: "death before birth"}
	ErrDuplicatePerson  = &Error{Code: CodeDuplicatePerson, Message: "person already exists"}
	ErrBirthOrder       = &Error{Code: CodeBirthOrder, Message: "born before an elder sibling"}
	ErrInvariant        = &Error{Code: CodeInvariant, Message: "tree invariant violated"}
)

func newError(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func idMeta(keyvals ...any) map[string]string {
	meta := make(map[string]string, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		meta[fmt.Sprint(keyvals[i])] = fmt.Sprint(keyvals[i+1])
	}
	return meta
}

// CodeOf returns the structural error code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return "", false
}

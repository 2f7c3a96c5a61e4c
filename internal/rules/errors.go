package rules

import "errors"

var (
	// ErrRead marks a rules file that exists but could not be read.
	ErrRead = errors.New("rules read failed")
	// ErrParse marks a rules file whose content is not a valid rules document.
	ErrParse = errors.New("rules parse failed")
	// ErrWrite marks a failed save.
	ErrWrite = errors.New("rules write failed")
	// ErrInvalidRule is returned by Rule.Validate for a new rule that breaks the data model.
	ErrInvalidRule = errors.New("invalid rule")
)

// PersistError describes a failed rules file operation.
type PersistError struct {
	Op   string // "read", "parse" or "write"
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return "rules " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PersistError) Unwrap() error { return e.Err }

// Is lets errors.Is match the ErrRead/ErrParse/ErrWrite sentinels.
func (e *PersistError) Is(target error) bool {
	switch e.Op {
	case "read":
		return target == ErrRead
	case "parse":
		return target == ErrParse
	case "write":
		return target == ErrWrite
	}
	return false
}

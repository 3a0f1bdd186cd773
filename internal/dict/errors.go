package dict

import (
	"errors"
	"fmt"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrFormat            = errors.New("format error")
	ErrConversion        = errors.New("conversion failed")
	ErrCopyIntegrity     = errors.New("copy integrity check failed")
	ErrNetwork           = errors.New("network failure")
	ErrNotFound          = errors.New("not found")
)

// ImportStage names the step of an import that failed.
type ImportStage string

const (
	StageValidation ImportStage = "validation"
	StageCopy       ImportStage = "copy"
	StageConversion ImportStage = "conversion"
	StageMetadata   ImportStage = "metadata"
)

// ImportError reports which import stage failed so callers can tell a bad
// source file apart from a converter problem.
type ImportError struct {
	Stage ImportStage
	Path  string
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// StageOf returns the failed stage of an import error, or "" for other errors.
func StageOf(err error) ImportStage {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Stage
	}
	return ""
}

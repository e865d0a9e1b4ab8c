package core

// errors.go maps pipeline errors to stable codes for run logs and metric labels.
//
// # Error Codes Reference
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Unreadable file: the file could not be opened or read
//	          Action: Check permissions; the file is retried next run
//	FILE002 - Invalid tabular data: no header row or undecodable content
//	          Action: Re-export the file as CSV or XLSX with a header row
//	FILE003 - File too large: the file exceeds INPUT_MAX_FILE_SIZE
//	          Action: Split the export or raise the limit
//	FILE004 - Empty file: the file has no data rows
//	          Action: None; the file is retried when it changes
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Merge failed: the partition could not be updated
//	           Action: Check disk space and the store directory
//
// # State Errors (STATE001-STATE099)
//
//	STATE001 - Commit failed: records merged but the file state was not saved
//	           Action: None; the next run re-reads the file and adds nothing
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check the log line for the underlying cause
//
// Sentinel errors are checked first with errors.Is. Errors that arrive
// without a sentinel (third-party decoders, OS errors) fall back to
// case-insensitive substring patterns; the first match wins.

import (
	"errors"
	"io/fs"
	"strings"
)

// Sentinel errors wrapped by the stage that detects them.
var (
	ErrUnreadable     = errors.New("unreadable file")
	ErrInvalidTabular = errors.New("invalid tabular data")
	ErrFileTooLarge   = errors.New("file too large")
	ErrEmptyFile      = errors.New("empty file")
	ErrMergeFailed    = errors.New("merge failed")
	ErrCommitFailed   = errors.New("state commit failed")
)

// Stable error codes.
const (
	CodeUnreadable     = "FILE001"
	CodeInvalidTabular = "FILE002"
	CodeFileTooLarge   = "FILE003"
	CodeEmptyFile      = "FILE004"
	CodeMergeFailed    = "STORE001"
	CodeCommitFailed   = "STATE001"
	CodeUnknown        = "ERR000"
)

// ErrorInfo describes an error category for operators.
type ErrorInfo struct {
	Code    string
	Message string
	Action  string
}

var sentinelInfo = []struct {
	err  error
	info ErrorInfo
}{
	{ErrFileTooLarge, ErrorInfo{CodeFileTooLarge, "File exceeds the configured size limit", "Split the export or raise INPUT_MAX_FILE_SIZE"}},
	{ErrEmptyFile, ErrorInfo{CodeEmptyFile, "File has no data rows", "None; the file is retried when it changes"}},
	{ErrInvalidTabular, ErrorInfo{CodeInvalidTabular, "File is not valid tabular data", "Re-export as CSV or XLSX with a header row"}},
	{ErrUnreadable, ErrorInfo{CodeUnreadable, "File could not be read", "Check file permissions"}},
	{ErrMergeFailed, ErrorInfo{CodeMergeFailed, "Partition merge failed", "Check disk space and the store directory"}},
	{ErrCommitFailed, ErrorInfo{CodeCommitFailed, "File state was not saved", "None; the next run adds nothing"}},
}

// errorPatterns covers errors that reach Classify without a sentinel.
// Specific patterns come before general ones.
var errorPatterns = []struct {
	pattern string
	code    string
}{
	{"file too large", CodeFileTooLarge},
	{"exceeds limit", CodeFileTooLarge},
	{"empty file", CodeEmptyFile},
	{"no data rows", CodeEmptyFile},
	{"header not found", CodeInvalidTabular},
	{"parse error", CodeInvalidTabular},
	{"zip: not a valid zip file", CodeInvalidTabular},
	{"permission denied", CodeUnreadable},
	{"no such file", CodeUnreadable},
}

var defaultInfo = ErrorInfo{
	Code:    CodeUnknown,
	Message: "An unexpected error occurred",
	Action:  "Check the log line for the underlying cause",
}

// Classify returns the stable code for err, or "" for nil.
func Classify(err error) string {
	return Describe(err).Code
}

// Describe is Classify with operator-facing text.
func Describe(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	for _, s := range sentinelInfo {
		if errors.Is(err, s.err) {
			return s.info
		}
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return infoFor(CodeUnreadable)
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.pattern) {
			return infoFor(p.code)
		}
	}
	return defaultInfo
}

func infoFor(code string) ErrorInfo {
	for _, s := range sentinelInfo {
		if s.info.Code == code {
			return s.info
		}
	}
	return defaultInfo
}

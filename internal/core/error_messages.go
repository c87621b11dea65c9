// Error Codes Reference
//
// Every error a session operation returns can be mapped to a user-friendly
// message with a code for support reference. Typed errors are matched first
// (errors.Is / errors.As); anything else falls back to substring patterns.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the configured size limit
//	          Action: Split the file or raise LOAD_MAX_FILE_SIZE
//	FILE002 - Parse error: The file could not be parsed
//	          Action: Check the file for inconsistent columns or corruption
//	FILE003 - Permission denied: The file could not be read
//	          Action: Check the file permissions
//	FILE004 - File not found: The path does not exist
//	          Action: Check the path and try again
//	FILE005 - Empty file: The file has no data rows
//	          Action: Choose a file with a header and at least one row
//	FILE006 - Duplicate columns: Column names must be unique
//	          Action: Rename the repeated columns and reload
//	FILE007 - Unsupported format: This file type cannot be loaded
//	          Action: Use CSV, TSV, XLSX or Parquet
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - Load cancelled
//	LOAD002 - Load in progress: Another file is still loading
//	LOAD003 - No table loaded
//	LOAD004 - Unknown sheet
//	LOAD005 - No load in progress
//
// # Search Errors (SRCH001-SRCH099)
//
//	SRCH001 - No search terms
//	SRCH002 - Invalid search pattern
//
// # Duplicate and Column Errors (DUP001-DUP099, COL001)
//
//	DUP001 - No columns selected for duplicate detection
//	DUP002 - Duplicate column not found
//	COL001 - Column not found
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Unknown export format
//	EXP002 - Export sink not configured
//	EXP003 - Invalid export table name
//
// # Database and Request Errors
//
//	DB001   - Duplicate key (pattern "duplicate key")
//	DB004   - Connection refused (pattern "connection refused")
//	DB005   - Connection reset (pattern "connection reset")
//	REQ001  - Request cancelled (pattern "context canceled")
//	REQ002  - Request timed out (pattern "context deadline exceeded", "timeout")
//	REQ003  - Malformed request (raised by the web layer as a UserError)
//	RATE001 - Rate limited (pattern "rate limit")
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// original technical error when users report ERR000.

package core

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/JonMunkholm/tablesift/internal/dedup"
	"github.com/JonMunkholm/tablesift/internal/export"
	"github.com/JonMunkholm/tablesift/internal/ingest"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[ingest.Kind]UserMessage{
	ingest.KindSizeLimitExceeded: {
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file into smaller files or raise the size limit",
		Code:    "FILE001",
	},
	ingest.KindParseError: {
		Message: "The file could not be parsed",
		Action:  "Check that every row has the same number of columns",
		Code:    "FILE002",
	},
	ingest.KindPermissionDenied: {
		Message: "The file could not be read",
		Action:  "Check the file permissions and try again",
		Code:    "FILE003",
	},
	ingest.KindEmptyFile: {
		Message: "The file has no data rows",
		Action:  "Choose a file with a header row and at least one data row",
		Code:    "FILE005",
	},
	ingest.KindDuplicateColumns: {
		Message: "The file has duplicate column names",
		Action:  "Rename the repeated columns and load the file again",
		Code:    "FILE006",
	},
	ingest.KindUnsupported: {
		Message: "This file type is not supported",
		Action:  "Use a CSV, TSV, XLSX or Parquet file",
		Code:    "FILE007",
	},
	ingest.KindCancelled: {
		Message: "Loading was cancelled",
		Action:  "Start a new load when ready",
		Code:    "LOAD001",
	},
}

// sentinelMessages are matched with errors.Is, in order. Wrapping errors
// come before the errors they wrap.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ingest.ErrLoadInProgress, UserMessage{
		Message: "Another file is still loading",
		Action:  "Wait for it to finish or cancel it",
		Code:    "LOAD002",
	}},
	{fs.ErrNotExist, UserMessage{
		Message: "The file does not exist",
		Action:  "Check the path and try again",
		Code:    "FILE004",
	}},
	{ErrNoTable, UserMessage{
		Message: "No table is loaded",
		Action:  "Load a file first",
		Code:    "LOAD003",
	}},
	{ingest.ErrUnknownSheet, UserMessage{
		Message: "The sheet does not exist in this workbook",
		Action:  "Choose one of the listed sheets",
		Code:    "LOAD004",
	}},
	{ingest.ErrNotSpreadsheet, UserMessage{
		Message: "The loaded file has no sheets",
		Action:  "Sheets can only be selected for Excel workbooks",
		Code:    "LOAD004",
	}},
	{ErrNoLoad, UserMessage{
		Message: "No load is in progress",
		Action:  "Start a load first",
		Code:    "LOAD005",
	}},
	{query.ErrNoTerms, UserMessage{
		Message: "Enter at least one search term",
		Action:  "Type a value in either search box",
		Code:    "SRCH001",
	}},
	{query.ErrInvalidPattern, UserMessage{
		Message: "The search term could not be used",
		Action:  "Remove unusual characters from the search term",
		Code:    "SRCH002",
	}},
	{dedup.ErrNoColumnsSelected, UserMessage{
		Message: "No columns are selected for duplicate detection",
		Action:  "Select at least one column",
		Code:    "DUP001",
	}},
	{dedup.ErrUnknownColumn, UserMessage{
		Message: "A selected duplicate column does not exist",
		Action:  "Select columns from the current table",
		Code:    "DUP002",
	}},
	{table.ErrUnknownColumn, UserMessage{
		Message: "Column not found",
		Action:  "Choose a column from the current table",
		Code:    "COL001",
	}},
	{export.ErrUnknownFormat, UserMessage{
		Message: "Unknown export format",
		Action:  "Export as csv, json, xlsx or postgres",
		Code:    "EXP001",
	}},
	{export.ErrSinkNotConfigured, UserMessage{
		Message: "Database export is not configured",
		Action:  "Set EXPORT_DATABASE_URL to enable it",
		Code:    "EXP002",
	}},
	{export.ErrInvalidTableName, UserMessage{
		Message: "Invalid export table name",
		Action:  "Provide a table name for the export",
		Code:    "EXP003",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages
// for errors that carry no type, mostly from the database driver and the
// HTTP layer. The first matching pattern wins.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A row with this key already exists in the export table",
			Action:  "Export to a new table or remove the conflicting rows",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := session.Search(ctx, query.Spec{})
//	msg := MapError(err)
//	// msg.Code == "SRCH001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	var le *ingest.Error
	if errors.As(err, &le) && le.Kind != ingest.KindUnknown {
		return kindMessages[le.Kind]
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

// Package core provides the session that owns the loaded table.
//
// This package wires the ingestion, query, duplicate and display engines
// together, independent of any UI or transport layer. It is used by the web
// handlers and the command-line tool without modification.
//
// # Architecture
//
//   - Session: The single entry point. It holds at most one table plus the
//     annotations derived from it (search view, highlights, duplicates).
//   - Loads: [Session.StartLoad] runs an ingest load in the background and
//     installs the table only when it succeeds.
//   - Grid: [Session.Grid] pages through the current view using the render
//     cache, so repeated repaints do not reformat cells.
//   - Export: [Session.Export] writes the view or every row as CSV, JSON or
//     XLSX, or copies it into PostgreSQL.
//
// # Loading
//
// Loads report progress to any number of subscribers:
//
//  1. Client calls [Session.StartLoad] with a path (and optional sheet)
//  2. The loader validates the file synchronously and returns a [LoadStatus]
//  3. Rows are read in chunks; progress is broadcast via [Session.SubscribeLoad]
//  4. On success the table replaces the previous one and annotations reset
//
// A failed or cancelled load leaves the previous table and its annotations
// exactly as they were.
//
// # Consistency
//
// Every operation computes its full result before changing state. A search
// with no terms, a duplicate request for an unknown column, or a failed sort
// returns an error and the session is unchanged.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE007: File errors (size, parse, permissions, columns)
//   - LOAD001-LOAD005: Load errors (cancelled, busy, sheets)
//   - SRCH001-SRCH002: Search errors
//   - DUP001-DUP002, COL001: Column selection errors
//   - EXP001-EXP003: Export errors
//
// # Thread Safety
//
// Session is safe for concurrent use. Grid takes the write lock because the
// render cache memoizes formatted cells on read.
package core

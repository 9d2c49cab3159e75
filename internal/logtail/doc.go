// Package logtail reads the tail of the client's debug log for display.
//
// # Overview
//
// The client writes slog JSON records to its log file. The console's log
// view shows the most recent ones, so this package reads the last N lines of
// the file and turns each record into a compact line:
//
//	{"time":"2026-10-18T14:32:15Z","level":"WARN","msg":"cache get failed","key":"/books#GET"}
//	14:32:15 WARN cache get failed key=/books#GET
//
// # Reading Log Files
//
// Read keeps a ring buffer of maxLines entries while scanning the file once,
// so memory is O(maxLines) regardless of file size, and lines come back in
// file order.
//
// # Error Handling
//
// A missing file is not an error: Read returns nil, nil before the client
// has logged anything. Lines that are not JSON are kept verbatim.
package logtail

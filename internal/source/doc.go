// Package source materializes raw records from already-downloaded registry
// files. CSV, TSV, JSON arrays and JSON Lines are supported; the format is
// chosen by file extension.
//
// CSV input may be UTF-8 (with or without a byte-order mark), UTF-16 with a
// byte-order mark, or Windows-1252. Values are returned as read: CSV cells
// are strings, empty cells included, and JSON numbers are json.Number so
// identifiers such as "00123" or 12345678901234567890 are not rounded.
package source

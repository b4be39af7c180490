// Package humanmem formats byte counts for human-facing diagnostics, such
// as the projected-memory report cubedctl's plan command prints.
package humanmem

import "github.com/dustin/go-humanize"

// Bytes formats n bytes using IEC-style units (e.g. "512 MiB").
func Bytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

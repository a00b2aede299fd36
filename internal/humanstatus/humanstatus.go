// Package humanstatus formats byte counts and percentages for the CLI run
// summary. Per spec §1, human-readable size formatting is explicitly out of
// the core's scope; this package exists so catalog/pipeline/snapshot/restore
// never need to import it themselves — only cli does.
package humanstatus

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Bytes renders n bytes as a short human string, e.g. "4.2 MB".
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}

// Percent renders done/total as a percentage string, e.g. "37.5%". Returns
// "100%" when total is zero (nothing left to do).
func Percent(done, total uint64) string {
	if total == 0 {
		return "100%"
	}

	return fmt.Sprintf("%.1f%%", float64(done)/float64(total)*100)
}

// Package naming generates process-scoped unique names, such as the kernel
// names the fusion engine registers for fused primitive operations. Names
// are unique within one process but are not monotonic across processes or
// restarts.
package naming

import (
	"fmt"
	"sync/atomic"
)

var counter atomic.Int64

// Next returns a name of the form "<prefix>-NNN", unique within this
// process.
func Next(prefix string) string {
	n := counter.Add(1)
	return fmt.Sprintf("%s-%03d", prefix, n)
}

package diag

import (
	"fmt"

	"github.com/ilovaca/ece344/biscuit/src/caller"
	"github.com/ilovaca/ece344/biscuit/src/console"
)

// nearlyFull gates repeated "coremap nearly full" warnings to their
// first occurrence per distinct call chain, so a hot fault-handler loop
// racing against memory pressure doesn't spam the console once per
// fault. Grounded on caller.Distinct_caller_t, otherwise unused once
// this port dropped the teacher's hashtable/oommsg OOM-killer (see
// DESIGN.md): the same dedup primitive now gates this smaller warning
// instead.
var nearlyFull = caller.Distinct_caller_t{Enabled: true}

// WarnIfNearlyFull writes a one-line warning to dev the first time a
// given call chain observes the coremap above thresholdPct percent
// full; later calls from the same call chain are silent.
func WarnIfNearlyFull(dev console.Device, used, total int, thresholdPct int) {
	if total == 0 || used*100 < thresholdPct*total {
		return
	}
	if first, _ := nearlyFull.Distinct(); !first {
		return
	}
	msg := fmt.Sprintf("diag: coremap %d/%d frames in use\n", used, total)
	for i := 0; i < len(msg); i++ {
		dev.Putch(msg[i])
	}
}

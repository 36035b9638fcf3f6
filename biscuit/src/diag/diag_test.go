package diag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ilovaca/ece344/biscuit/src/console"
	"github.com/ilovaca/ece344/biscuit/src/coremap"
	"github.com/ilovaca/ece344/biscuit/src/swapfile"
)

func TestCountersSnapshotReflectsIncrements(t *testing.T) {
	var c Counters
	c.Inc(PageFaults)
	c.Add(Evictions, 3)
	snap := c.Snapshot()
	require.EqualValues(t, 1, snap[PageFaults])
	require.EqualValues(t, 3, snap[Evictions])
	require.EqualValues(t, 0, snap[Syscalls])
}

func TestReportIncludesEveryCounterName(t *testing.T) {
	var c Counters
	c.Inc(Syscalls)
	out := Report(&c)
	require.True(t, strings.Contains(out, "syscalls"))
	require.True(t, strings.Contains(out, "page_faults"))
	for n := Name(0); n < numCounters; n++ {
		require.True(t, strings.Contains(out, n.String()), n.String())
	}
}

func TestCoremapProfileSkipsFreeFrames(t *testing.T) {
	cm := coremap.Bootstrap(8, 1, swapfile.NewMem(), 16)
	p := CoremapProfile(cm)
	for _, s := range p.Sample {
		require.NotEqual(t, 0, len(s.Label["frame_index"]))
	}
	require.Less(t, len(p.Sample), 8)
}

func TestWarnIfNearlyFullFiresOncePerCallChain(t *testing.T) {
	dev := console.NewRing(256)
	// Both calls must originate from the same call site: the dedup key is
	// the full call chain, so two different source lines would count as
	// two distinct chains and both would fire.
	fill := []int{90, 95}
	for _, used := range fill {
		WarnIfNearlyFull(dev, used, 100, 80)
	}
	out := dev.Written()
	require.Equal(t, 1, strings.Count(string(out), "diag:"))
}

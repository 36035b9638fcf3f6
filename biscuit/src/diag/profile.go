package diag

import (
	"fmt"

	"github.com/google/pprof/profile"

	"github.com/ilovaca/ece344/biscuit/src/coremap"
)

// CoremapProfile builds a point-in-time pprof Profile of physical-frame
// ownership: one sample per live (DIRTY/CLEAN/FIXED) frame, valued by
// page count, located at a synthetic "function" named for the frame's
// state so `go tool pprof -top` groups frames by state out of the box.
// Exercises the teacher's github.com/google/pprof dependency, otherwise
// idle in this port (its native use — symbolizing real CPU/heap
// profiles — has no analog in a kernel with no host runtime to sample).
func CoremapProfile(cm *coremap.Coremap) *profile.Profile {
	frames := cm.Snapshot()

	funcs := make(map[coremap.State]*profile.Function)
	locs := make(map[coremap.State]*profile.Location)
	var nextID uint64 = 1

	getLoc := func(st coremap.State) *profile.Location {
		if l, ok := locs[st]; ok {
			return l
		}
		fn := &profile.Function{ID: nextID, Name: fmt.Sprintf("frame.%v", st)}
		nextID++
		loc := &profile.Location{
			ID:   nextID,
			Line: []profile.Line{{Function: fn}},
		}
		nextID++
		funcs[st] = fn
		locs[st] = loc
		return loc
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "frames", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "snapshot", Unit: "count"},
		Period:     1,
	}

	for i, f := range frames {
		if f.State == coremap.FREE {
			continue
		}
		loc := getLoc(f.State)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{1},
			Label:    map[string][]string{"frame_index": {fmt.Sprint(i)}},
		})
	}

	for _, fn := range funcs {
		p.Function = append(p.Function, fn)
	}
	for _, loc := range locs {
		p.Location = append(p.Location, loc)
	}
	return p
}

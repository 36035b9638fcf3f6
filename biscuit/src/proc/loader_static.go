package proc

import (
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/vm"
)

// Segment is one loadable piece of a program image: a page-aligned
// virtual base, its permissions, and its initial contents (zero-padded
// out to Size if Contents is shorter, matching a real ELF segment's
// filesz/memsz split between backed and demand-zero bytes).
type Segment struct {
	Vbase    uint
	Size     uint
	R, W, X  bool
	Contents []byte
}

// Image is a complete program: its segments (mapped in order by
// StaticLoader.Load) and its entry point.
type Image struct {
	Segments []Segment
	Entry    uint
}

// StaticLoader is a Loader backed by an in-memory name->Image registry,
// standing in for the VFS lookup plus ELF decode real hardware would
// perform (spec.md §1 scopes the on-disk filesystem and ELF format out;
// DESIGN.md drops fs/mkfs/ufs entirely). Grounded on swapfile.MemBackend's
// same test-only in-memory-map-for-an-external-collaborator shape.
type StaticLoader struct {
	images map[string]Image
}

// NewStaticLoader constructs a StaticLoader with no registered images.
func NewStaticLoader() *StaticLoader {
	return &StaticLoader{images: make(map[string]Image)}
}

// Register makes path resolve to img for subsequent Open calls.
func (l *StaticLoader) Register(path string, img Image) {
	l.images[path] = img
}

// Open resolves path to its registered Image, ENOENT if none exists.
// cwd is accepted to satisfy the Loader interface's cwd-relative lookup
// contract but goes unused: the registry is looked up with path exactly
// as given, so a relative path is not resolved against cwd.
func (l *StaticLoader) Open(path string, cwd *string) (Handle, defs.Err_t) {
	img, ok := l.images[path]
	if !ok {
		return nil, -defs.ENOENT
	}
	return img, 0
}

// Load maps h's segments into as, writes their initial contents, and
// returns the image's entry point. as is already past PrepareLoad, so
// every region accepts writes regardless of its final permissions.
func (l *StaticLoader) Load(as *vm.AddressSpace, h Handle) (uint, defs.Err_t) {
	img := h.(Image)
	for _, seg := range img.Segments {
		if err := as.DefineRegion(seg.Vbase, seg.Size, seg.R, seg.W, seg.X); err != 0 {
			return 0, err
		}
		if len(seg.Contents) == 0 {
			continue
		}
		ub := vm.NewUserbuf(as, seg.Vbase, len(seg.Contents))
		n, err := ub.Uiowrite(seg.Contents)
		if err != 0 || n != len(seg.Contents) {
			return 0, -defs.EFAULT
		}
	}
	return img.Entry, 0
}

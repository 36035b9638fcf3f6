// Package swapfile provides the page-indexed storage backend the coremap
// swaps pages to and from. The real VFS/VOP layer (vfs_open, VOP_READ,
// VOP_WRITE) is an external collaborator out of scope here; this package
// is the interface boundary plus a production-shaped default
// implementation, grounded on the teacher's ahci_disk_t (a mutex-guarded
// Seek-then-Read/Write over an *os.File) and its Bdev_req_t/Disk_i
// request-object pattern, adapted from block-indexed disk I/O to the flat
// page-indexed swap file this kernel uses: slot k occupies bytes
// [k*PAGE_SIZE, (k+1)*PAGE_SIZE), no header, no checksums.
package swapfile

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ilovaca/ece344/biscuit/src/mem"
)

/// Backend is the swap I/O boundary the coremap drives. Implementations
/// must serialize their own concurrent access; the coremap calls in under
/// its own critical section but the backend's I/O (e.g. disk seek) may
/// still interleave with other backend users.
type Backend interface {
	ReadSlot(slot uint32, page *mem.Page_t) error
	WriteSlot(slot uint32, page *mem.Page_t) error
}

/// FileBackend is the default Backend: a single flat file, truncated and
/// created at boot, matching §6's "swapfile" contract.
type FileBackend struct {
	mu sync.Mutex
	f  *os.File
}

/// Open creates (truncating) the swap file at path.
func Open(path string) (*FileBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("swapfile: open %s: %w", path, err)
	}
	return &FileBackend{f: f}, nil
}

func (fb *FileBackend) off(slot uint32) int64 {
	return int64(slot) * int64(mem.PGSIZE)
}

/// ReadSlot reads slot's PAGE_SIZE bytes into page.
func (fb *FileBackend) ReadSlot(slot uint32, page *mem.Page_t) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if _, err := fb.f.Seek(fb.off(slot), 0); err != nil {
		return err
	}
	_, err := io.ReadFull(fb.f, page[:])
	return err
}

/// WriteSlot writes page's PAGE_SIZE bytes to slot.
func (fb *FileBackend) WriteSlot(slot uint32, page *mem.Page_t) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if _, err := fb.f.Seek(fb.off(slot), 0); err != nil {
		return err
	}
	_, err := fb.f.Write(page[:])
	return err
}

/// Close releases the underlying file.
func (fb *FileBackend) Close() error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.f.Close()
}

/// MemBackend is an in-memory Backend, used by tests that want swap
/// behavior without a real file on disk.
type MemBackend struct {
	mu    sync.Mutex
	slots map[uint32]mem.Page_t
}

/// NewMem constructs an empty in-memory backend.
func NewMem() *MemBackend {
	return &MemBackend{slots: make(map[uint32]mem.Page_t)}
}

func (mb *MemBackend) ReadSlot(slot uint32, page *mem.Page_t) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	*page = mb.slots[slot]
	return nil
}

func (mb *MemBackend) WriteSlot(slot uint32, page *mem.Page_t) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.slots[slot] = *page
	return nil
}

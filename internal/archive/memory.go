package archive

import (
	"bytes"
	"context"
	"io"
	"sync"

	"moltd/internal/daemon"
)

// MemoryArchive is an in-process daemon.Archive for tests.
type MemoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	enc     daemon.Encryptor
}

var _ daemon.Archive = (*MemoryArchive)(nil)

func NewMemoryArchive(enc daemon.Encryptor) *MemoryArchive {
	if enc == nil {
		enc = passthrough{}
	}
	return &MemoryArchive{objects: make(map[string][]byte), enc: enc}
}

func (a *MemoryArchive) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	if err := a.enc.Encrypt(r, &buf); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[name] = buf.Bytes()
	return nil
}

func (a *MemoryArchive) Validate(ctx context.Context) error { return nil }

// Get returns a stored object's raw (possibly encrypted) bytes.
func (a *MemoryArchive) Get(name string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[name]
	return data, ok
}

// Len reports the number of stored objects.
func (a *MemoryArchive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.objects)
}

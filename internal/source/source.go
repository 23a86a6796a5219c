// Package source is the object-source capability: random-access read of
// ELF bytes, for either memory-resident inputs (a payload already staged
// in a []byte, the common in-memory-loader case) or file-backed ones, plus
// an optional asynchronous variant that lets a caller overlap I/O when
// loading many objects. The core performs no scheduling of its own; the
// async variant exists purely so a caller that does have a scheduler can
// use it.
package source

import (
	"errors"
	"io"
	"os"
)

// Reader is random-access read of the ELF byte stream.
type Reader interface {
	io.ReaderAt
	Size() int64
}

// Slicer is implemented by sources that are already memory-resident, so
// callers (and internal/rawelf) can avoid a copy.
type Slicer interface {
	AsSlice() []byte
}

// Result is the outcome of one asynchronous read.
type Result struct {
	N   int
	Err error
}

// AsyncReader overlaps I/O for a Reader that supports it.
type AsyncReader interface {
	ReadAtAsync(buf []byte, offset int64) <-chan Result
}

// Bytes wraps an in-memory ELF image.
type Bytes struct {
	data []byte
}

// NewBytes wraps data without copying it. The caller must not mutate data
// for as long as the resulting source (or anything parsed from it) is in
// use.
func NewBytes(data []byte) *Bytes {
	return &Bytes{data: data}
}

func (b *Bytes) Size() int64 { return int64(len(b.data)) }

func (b *Bytes) AsSlice() []byte { return b.data }

func (b *Bytes) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("source: negative offset")
	}
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *Bytes) ReadAtAsync(p []byte, off int64) <-chan Result {
	ch := make(chan Result, 1)
	n, err := b.ReadAt(p, off)
	ch <- Result{N: n, Err: err}
	close(ch)
	return ch
}

// File wraps an *os.File opened for random access.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens path for reading and stats its size up front.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: st.Size()}, nil
}

func (fs *File) Size() int64 { return fs.size }

func (fs *File) ReadAt(p []byte, off int64) (int, error) {
	return fs.f.ReadAt(p, off)
}

// ReadAtAsync runs the read on its own goroutine — the core has no
// scheduler of its own, so this is the extent of "async" it offers.
func (fs *File) ReadAtAsync(p []byte, off int64) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		n, err := fs.ReadAt(p, off)
		ch <- Result{N: n, Err: err}
		close(ch)
	}()
	return ch
}

// Close releases the underlying file descriptor.
func (fs *File) Close() error {
	return fs.f.Close()
}

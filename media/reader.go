package media

import (
	"fmt"
	"io"
	"sync"
)

// Reader is the bounded, randomly-addressable byte source shared by
// Sample payload closures: it wraps an underlying io.ReaderAt (file,
// memory buffer, or range callback) plus a known Size.
//
// Random-access reads via ReadRange never touch shared cursor state
// and are inherently safe for concurrent borrowers, matching
// io.ReaderAt's contract. The one piece of mutable state - the
// sequential convenience cursor exposed through Read/Seek for
// collaborators that want io.ReadSeeker semantics - is guarded by a
// mutex so unrelated goroutines sharing one Reader cannot race.
//
// An engine's output becomes invalid once its originating Reader is
// destroyed; Reader does not own the lifetime of the underlying
// io.ReaderAt.
type Reader struct {
	ra   io.ReaderAt
	size int64

	mu     sync.Mutex
	offset int64
}

// NewReader wraps ra, which must serve size bytes starting at offset 0.
func NewReader(ra io.ReaderAt, size int64) *Reader {
	return &Reader{ra: ra, size: size}
}

// Size returns the total number of bytes available from the Reader.
func (r *Reader) Size() int64 { return r.size }

// ReadRange reads exactly size bytes starting at offset.
func (r *Reader) ReadRange(offset, size int64) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > r.size {
		return nil, NewError(OutOfRange, "media.Reader.ReadRange",
			fmt.Errorf("range [%d,%d) exceeds size %d", offset, offset+size, r.size))
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(r.ra, offset, size), buf); err != nil {
		return nil, NewError(ReaderError, "media.Reader.ReadRange", err)
	}
	return buf, nil
}

// ReadAt implements io.ReaderAt, so a Reader can itself serve as the
// source behind a track.View's Sample.Payload closures.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	buf, err := r.ReadRange(off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(p, buf), nil
}

// Read advances the Reader's shared sequential cursor. It exists for
// collaborators (e.g. an Annex-B byte-stream scanner) that expect
// io.Reader semantics over a source several borrowers may share.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offset >= r.size {
		return 0, io.EOF
	}
	n := int64(len(p))
	if r.offset+n > r.size {
		n = r.size - r.offset
	}
	read, err := r.ra.ReadAt(p[:n], r.offset)
	r.offset += int64(read)
	if err == io.EOF && read > 0 {
		err = nil
	}
	return read, err
}

// Seek repositions the shared sequential cursor.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.offset + offset
	case io.SeekEnd:
		next = r.size + offset
	default:
		return 0, fmt.Errorf("media.Reader.Seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("media.Reader.Seek: negative position %d", next)
	}
	r.offset = next
	return r.offset, nil
}

package search

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Searcher holds configuration for the pointer path search
type Searcher struct {
	MaxStructSize uint
	MaxDepth      int
	MinAlignment  uint
	SearchFor     func([]byte) bool
	IsPointer     func(uint64) bool
}

// Option is a function that configures a Searcher
type Option func(*Searcher)

func WithMaxStructSize(size uint) Option {
	return func(s *Searcher) {
		s.MaxStructSize = size
	}
}

func WithMaxDepth(depth int) Option {
	return func(s *Searcher) {
		s.MaxDepth = depth
	}
}

func WithMinAlignment(align uint) Option {
	return func(s *Searcher) {
		s.MinAlignment = align
	}
}

// WithPointerFilter restricts which values are followed as pointers, e.g. to
// the ranges of the loaded modules.
func WithPointerFilter(isPointer func(uint64) bool) Option {
	return func(s *Searcher) {
		s.IsPointer = isPointer
	}
}

// WithSearchForBytes looks for an exact byte sequence.
func WithSearchForBytes(want []byte) Option {
	return func(s *Searcher) {
		s.SearchFor = func(data []byte) bool {
			return bytes.HasPrefix(data, want)
		}
	}
}

// WithSearchForType looks for the in-memory representation of val. T must be
// plain data.
func WithSearchForType[T any](val T) Option {
	want := bytes.Clone(unsafe.Slice((*byte)(unsafe.Pointer(&val)), int(unsafe.Sizeof(val))))
	return WithSearchForBytes(want)
}

// Result is a path of offsets from the base address to a match. Every offset
// but the last is followed by a pointer dereference, the way driver.ReadPath
// walks a path.
type Result struct {
	Path []uint64
}

func (r Result) String() string {
	var sb bytes.Buffer
	for i, offset := range r.Path {
		if i > 0 {
			sb.WriteString(" -> ")
		}
		fmt.Fprintf(&sb, "+0x%x", offset)
	}
	return sb.String()
}

// Search walks the structure graph reachable from base and reports every
// path to a value matching the search target.
func Search(r Reader, target Target, base uint64, options ...Option) ([]Result, error) {
	s := &Searcher{
		MaxStructSize: 256,
		MaxDepth:      3,
		MinAlignment:  4,
		IsPointer: func(ptr uint64) bool {
			return ptr >= 0x10000
		},
	}

	for _, opt := range options {
		opt(s)
	}

	if s.SearchFor == nil {
		return nil, fmt.Errorf("no search target specified")
	}
	if s.MinAlignment == 0 {
		s.MinAlignment = 1
	}

	var results []Result
	visited := make(map[uint64]bool)

	var searchRecursive func(addr uint64, depth int, path []uint64) error
	searchRecursive = func(addr uint64, depth int, path []uint64) error {
		if depth > s.MaxDepth || visited[addr] {
			return nil
		}
		visited[addr] = true

		data := make([]byte, s.MaxStructSize)
		if err := target.read(r, addr, data); err != nil {
			if Unreadable(err) {
				return nil
			}
			return err
		}

		for offset := uint(0); offset+s.MinAlignment <= uint(len(data)); offset += s.MinAlignment {
			if s.SearchFor(data[offset:]) {
				results = append(results, Result{Path: appendPath(path, uint64(offset))})
			}

			if offset%8 != 0 || depth >= s.MaxDepth || offset+8 > uint(len(data)) {
				continue
			}

			ptr := binary.LittleEndian.Uint64(data[offset:])
			if ptr == 0 || !s.IsPointer(ptr) {
				continue
			}
			if err := searchRecursive(ptr, depth+1, appendPath(path, uint64(offset))); err != nil {
				return err
			}
		}
		return nil
	}

	if err := searchRecursive(base, 0, nil); err != nil {
		return results, err
	}
	return results, nil
}

func appendPath(path []uint64, offset uint64) []uint64 {
	newPath := make([]uint64, len(path), len(path)+1)
	copy(newPath, path)
	return append(newPath, offset)
}

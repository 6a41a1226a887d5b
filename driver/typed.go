package driver

import (
	"bytes"
	"fmt"

	"gomemd/pod"
	"gomemd/protocol"
	"gomemd/status"
)

// ReadT reads a value of type T at address. T must be plain data: no pointers,
// slices, maps or strings.
func ReadT[T any](i *Interface, pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64) (T, error) {
	var t T
	if err := pod.Check[T](); err != nil {
		return t, status.New("memory read", status.GeneralFailure, err)
	}

	buf := pod.Bytes(&t)
	if len(buf) == 0 {
		return t, nil
	}
	if err := i.Read(pid, dtt, address, buf); err != nil {
		var zero T
		return zero, err
	}
	return t, nil
}

// WriteT writes value at address. T must be plain data.
func WriteT[T any](i *Interface, pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64, value T) error {
	if err := pod.Check[T](); err != nil {
		return status.New("memory write", status.GeneralFailure, err)
	}

	buf := pod.Bytes(&value)
	if len(buf) == 0 {
		return nil
	}
	return i.Write(pid, dtt, address, buf)
}

// ReadSlice reads count consecutive values of type T starting at address.
// T must be plain data.
func ReadSlice[T any](i *Interface, pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64, count int) ([]T, error) {
	const op = "memory read"
	if err := pod.Check[T](); err != nil {
		return nil, status.New(op, status.GeneralFailure, err)
	}
	if count < 0 {
		return nil, status.Newf(op, status.GeneralFailure, "negative count %d", count)
	}

	values := make([]T, count)
	if err := i.Read(pid, dtt, address, pod.SliceBytes(values)); err != nil {
		return nil, err
	}
	return values, nil
}

// WriteSlice writes values back to back starting at address. T must be plain
// data.
func WriteSlice[T any](i *Interface, pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64, values []T) error {
	if err := pod.Check[T](); err != nil {
		return status.New("memory write", status.GeneralFailure, err)
	}
	return i.Write(pid, dtt, address, pod.SliceBytes(values))
}

// ReadPath reads a value of type T at the end of a pointer path.
// It starts at base, adds the first offset, reads a pointer, adds the next
// offset, reads a pointer, etc. The last offset is added to the final pointer
// and T is read from there. With no offsets T is read from base.
// Pointers are 8 bytes wide.
func ReadPath[T any](i *Interface, pid protocol.ProcessID, dtt *protocol.DirectoryTableType, base uint64, offsets ...uint64) (T, error) {
	var zero T
	current := base

	for n := 0; n < len(offsets)-1; n++ {
		ptrAddr := current + offsets[n]

		ptr, err := ReadT[uint64](i, pid, dtt, ptrAddr)
		if err != nil {
			return zero, fmt.Errorf("failed to read pointer at offset %d (addr 0x%x): %w", n, ptrAddr, err)
		}
		if ptr == 0 {
			return zero, fmt.Errorf("pointer at offset %d (addr 0x%x) is null", n, ptrAddr)
		}
		current = ptr
	}

	if len(offsets) > 0 {
		current += offsets[len(offsets)-1]
	}

	value, err := ReadT[T](i, pid, dtt, current)
	if err != nil {
		return zero, fmt.Errorf("failed to read final value at 0x%x: %w", current, err)
	}
	return value, nil
}

// ReadCString reads a NUL terminated string of at most maxLength bytes.
// The whole range must be readable.
func ReadCString(i *Interface, pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64, maxLength int) (string, error) {
	buf := make([]byte, maxLength)
	if err := i.Read(pid, dtt, address, buf); err != nil {
		return "", err
	}
	if n := bytes.IndexByte(buf, 0); n >= 0 {
		buf = buf[:n]
	}
	return string(buf), nil
}

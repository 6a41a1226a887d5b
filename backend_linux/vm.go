//go:build linux

package backend_linux

import (
	"errors"
	"unsafe"

	"gomemd/protocol"

	"golang.org/x/sys/unix"
)

// processVM moves len(local) bytes between local and remoteAddr of pid using
// process_vm_readv or process_vm_writev.
func processVM(trap uintptr, pid protocol.ProcessID, local []byte, remoteAddr uint64) (int, error) {
	localIov := unix.Iovec{Base: &local[0]}
	localIov.SetLen(len(local))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(local),
	}

	n, _, errno := unix.Syscall6(
		trap,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

func processVMReadv(pid protocol.ProcessID, local []byte, remoteAddr uint64) (int, error) {
	return processVM(unix.SYS_PROCESS_VM_READV, pid, local, remoteAddr)
}

func processVMWritev(pid protocol.ProcessID, local []byte, remoteAddr uint64) (int, error) {
	return processVM(unix.SYS_PROCESS_VM_WRITEV, pid, local, remoteAddr)
}

// transferResult maps the outcome of a process_vm call to a memory access
// result. Errors that are not about the target memory come back as err.
func transferResult(n, want int, err error) (protocol.MemoryAccessResult, error) {
	switch {
	case err == nil && n >= want:
		return protocol.MemoryAccessResult{Status: protocol.MemoryAccessSuccess}, nil
	case err == nil:
		return protocol.MemoryAccessResult{Status: protocol.MemoryAccessPartialSuccess, BytesCopied: n}, nil
	case errors.Is(err, unix.ESRCH):
		return protocol.MemoryAccessResult{Status: protocol.MemoryAccessProcessUnknown}, nil
	case errors.Is(err, unix.EFAULT), errors.Is(err, unix.EIO):
		return protocol.MemoryAccessResult{Status: protocol.MemoryAccessPartialSuccess, BytesCopied: 0}, nil
	default:
		return protocol.MemoryAccessResult{}, err
	}
}

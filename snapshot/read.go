package snapshot

import (
	"sort"

	"gomemd/protocol"
	"gomemd/status"
)

// Read copies captured memory at address into buf with the same failure
// statuses a driver session reports. A failed lookup zeroes buf; a refused
// directory table leaves it untouched.
func (s *Snapshot) Read(pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64, buf []byte) error {
	const op = "snapshot read"

	if dtt != nil && !dtt.IsDefault() {
		return status.Newf(op, status.Unsupported, "snapshots hold no page tables")
	}
	if pid != s.ProcessID {
		clear(buf)
		return status.Newf(op, status.InvalidProcess, "snapshot holds process %d", s.ProcessID)
	}
	if len(buf) == 0 {
		return nil
	}

	// last region starting at or below address
	i := sort.Search(len(s.Regions), func(i int) bool {
		return s.Regions[i].Address > address
	}) - 1
	if i < 0 || address >= s.Regions[i].end() {
		clear(buf)
		return status.Newf(op, status.TranslationFailed, "0x%X not captured", address)
	}

	region := s.Regions[i]
	data := s.blobs[region.Address][address-region.Address:]
	if uint64(len(buf)) > region.end()-address {
		clear(buf)
		return status.Newf(op, status.PartialTransfer, "0x%X bytes captured at 0x%X", len(data), address)
	}

	copy(buf, data)
	return nil
}

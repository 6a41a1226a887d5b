// Package search finds byte patterns and pointer paths in the memory of a
// target process, reading it through a driver interface.
package search

import (
	"gomemd/protocol"
	"gomemd/status"
)

const pageSize = 0x1000

// Reader reads memory of a target process. *driver.Interface implements it.
type Reader interface {
	Read(pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64, buf []byte) error
}

// Target selects the process and paging root to read from. A nil
// DirectoryTable selects the default one.
type Target struct {
	ProcessID      protocol.ProcessID
	DirectoryTable *protocol.DirectoryTableType
}

func (t Target) read(r Reader, address uint64, buf []byte) error {
	return r.Read(t.ProcessID, t.DirectoryTable, address, buf)
}

// Unreadable reports whether err only means the range is not readable, as
// opposed to the session or the process being gone.
func Unreadable(err error) bool {
	switch status.Of(err) {
	case status.TranslationFailed, status.PartialTransfer:
		return true
	default:
		return false
	}
}

// Scan searches [start, start+size) for aob and returns the absolute match
// addresses. The range is read in chunks of chunkSize bytes; a chunk that
// cannot be read as a whole is retried page by page and unreadable pages are
// skipped. A match never spans an unreadable page.
func Scan(r Reader, target Target, start, size uint64, aob AOB, chunkSize int) ([]uint64, error) {
	aob, err := NewAOB(aob.Pattern, aob.Mask)
	if err != nil {
		return nil, err
	}
	if chunkSize < pageSize {
		chunkSize = pageSize
	}

	s := scanner{aob: aob}
	end := start + size

	for addr := start; addr < end; {
		n := uint64(chunkSize)
		if end-addr < n {
			n = end - addr
		}

		buf := make([]byte, n)
		err := target.read(r, addr, buf)
		switch {
		case err == nil:
			s.feed(addr, buf)
		case Unreadable(err):
			if err := s.feedPages(r, target, addr, buf); err != nil {
				return s.matches, err
			}
		default:
			return s.matches, err
		}

		addr += n
	}

	return s.matches, nil
}

// scanner carries the tail of the previous readable segment so that matches
// crossing chunk boundaries are found.
type scanner struct {
	aob       AOB
	carry     []byte
	carryAddr uint64
	matches   []uint64
}

func (s *scanner) feed(addr uint64, data []byte) {
	if len(s.carry) == 0 || s.carryAddr+uint64(len(s.carry)) != addr {
		s.carry = nil
		s.carryAddr = addr
	}

	window := append(s.carry, data...)
	for _, offset := range s.aob.Match(window) {
		s.matches = append(s.matches, s.carryAddr+uint64(offset))
	}

	keep := len(s.aob.Pattern) - 1
	if keep > len(window) {
		keep = len(window)
	}
	s.carry = append([]byte(nil), window[len(window)-keep:]...)
	s.carryAddr = addr + uint64(len(data)) - uint64(keep)
}

func (s *scanner) reset() {
	s.carry = nil
}

func (s *scanner) feedPages(r Reader, target Target, addr uint64, buf []byte) error {
	for off := 0; off < len(buf); {
		// pages are aligned to the target's page grid, not to addr
		pageEnd := int((addr+uint64(off))/pageSize*pageSize + pageSize - addr)
		if pageEnd > len(buf) {
			pageEnd = len(buf)
		}

		page := buf[off:pageEnd]
		err := target.read(r, addr+uint64(off), page)
		switch {
		case err == nil:
			s.feed(addr+uint64(off), page)
		case Unreadable(err):
			s.reset()
		default:
			return err
		}

		off = pageEnd
	}
	return nil
}

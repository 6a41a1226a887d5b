package backend_sim

const pageSize = 0x1000

// addressSpace is the set of pages reachable from one paging root.
type addressSpace struct {
	pages    map[uint64][]byte
	pagedOut map[uint64]bool
}

func newAddressSpace() *addressSpace {
	return &addressSpace{
		pages:    make(map[uint64][]byte),
		pagedOut: make(map[uint64]bool),
	}
}

func (s *addressSpace) mapRange(addr, size uint64) {
	if size == 0 {
		return
	}
	last := (addr + size - 1) / pageSize
	for page := addr / pageSize; page <= last; page++ {
		if _, ok := s.pages[page]; !ok {
			s.pages[page] = make([]byte, pageSize)
		}
		delete(s.pagedOut, page)
	}
}

func (s *addressSpace) pageOut(addr uint64) {
	page := addr / pageSize
	if _, ok := s.pages[page]; ok {
		s.pagedOut[page] = true
	}
}

// walk visits the mapped pages backing [addr, addr+length) in order and stops
// at the first hole. It returns the number of bytes covered and whether the walk
// stopped on a paged out page.
func (s *addressSpace) walk(addr uint64, length int, visit func(page []byte, pageOffset, bufOffset, n int)) (int, bool) {
	done := 0
	for done < length {
		current := addr + uint64(done)
		page := current / pageSize
		if s.pagedOut[page] {
			return done, true
		}

		data, ok := s.pages[page]
		if !ok {
			return done, false
		}

		offset := int(current % pageSize)
		n := pageSize - offset
		if n > length-done {
			n = length - done
		}

		visit(data, offset, done, n)
		done += n
	}
	return done, false
}

func (s *addressSpace) read(addr uint64, buf []byte) (int, bool) {
	return s.walk(addr, len(buf), func(page []byte, pageOffset, bufOffset, n int) {
		copy(buf[bufOffset:bufOffset+n], page[pageOffset:pageOffset+n])
	})
}

func (s *addressSpace) write(addr uint64, buf []byte) (int, bool) {
	return s.walk(addr, len(buf), func(page []byte, pageOffset, bufOffset, n int) {
		copy(page[pageOffset:pageOffset+n], buf[bufOffset:bufOffset+n])
	})
}

package pod

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type header struct {
	Magic [8]byte `pod:"cstr"`
	Flags uint16  `pod:"flags"`
	Count int16
	Scale float32
}

type entity struct {
	Header header
	Owner  uint64 `pod:"ptr"`
	Pos    [2]uint32
}

type nested struct {
	Inner [2]struct {
		Ok   bool
		Next *entity
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check[entity]())
	assert.NoError(t, Check[uint64]())
	assert.NoError(t, Check[[16]byte]())
	assert.True(t, IsPlain[header]())

	err := Check[nested]()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pod.nested.Inner[].Next is a ptr")

	assert.False(t, IsPlain[string]())
	assert.False(t, IsPlain[[]byte]())
	assert.False(t, IsPlain[map[int]int]())
}

func TestBytesAliasesValue(t *testing.T) {
	v := uint32(0x11223344)
	b := Bytes(&v)
	require.Len(t, b, 4)
	assert.Equal(t, byte(0x44), b[0])

	b[0] = 0x55
	assert.Equal(t, uint32(0x11223355), v)

	empty := struct{}{}
	assert.Nil(t, Bytes(&empty))
	assert.Equal(t, 4, SizeOf[uint32]())
}

func TestFprint(t *testing.T) {
	e := entity{
		Header: header{Magic: [8]byte{'u', 'n', 'i', 't'}, Flags: 0x5, Count: -2, Scale: 1.5},
		Owner:  0x7FF600001234,
		Pos:    [2]uint32{10, 20},
	}
	symbolize := func(addr uint64) (string, bool) {
		if addr == 0x7FF600001234 {
			return "game.exe+0x1234", true
		}
		return "", false
	}

	var out bytes.Buffer
	require.NoError(t, Fprint(&out, &e, symbolize))
	text := out.String()

	assert.True(t, strings.HasPrefix(text, "entity (0x20 bytes)\n"))
	assert.Contains(t, text, `"unit"`)
	assert.Contains(t, text, "Header.Flags")
	assert.Contains(t, text, "bit 0")
	assert.Contains(t, text, "bit 2")
	assert.NotContains(t, text, "bit 1")
	assert.Contains(t, text, "-2")
	assert.Contains(t, text, "1.5")
	assert.Contains(t, text, "0x00007FF600001234")
	assert.Contains(t, text, "game.exe+0x1234")
	assert.Contains(t, text, "Pos[1]")
	assert.Contains(t, text, "20 (0x14)")
}

func TestFprintRejectsNonStruct(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, Fprint(&out, 42, nil))
	assert.Error(t, Fprint(&out, (*entity)(nil), nil))
}

func TestSliceBytesAliasesSlice(t *testing.T) {
	s := []uint16{0x1122, 0x3344, 0x5566}
	b := SliceBytes(s)
	require.Len(t, b, 6)
	assert.Equal(t, []byte{0x22, 0x11, 0x44, 0x33, 0x66, 0x55}, b)

	b[2] = 0xAA
	assert.Equal(t, uint16(0x33AA), s[1])

	assert.Nil(t, SliceBytes([]uint16{}))
	assert.Nil(t, SliceBytes(make([]struct{}, 4)))
}

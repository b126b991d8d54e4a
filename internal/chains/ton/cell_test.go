package ton

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

func testAddress(fill byte) *address.Address {
	return address.NewAddress(0, 0, bytes.Repeat([]byte{fill}, 32))
}

func TestSnakeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "short", size: 5},
		{name: "exactly one cell", size: MaxCellBytes},
		{name: "one byte over", size: MaxCellBytes + 1},
		{name: "several cells", size: MaxCellBytes*3 + 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i * 7)
			}

			encoded := EncodeSnake(data)
			parsed, err := ParseCell(ToHex(encoded))
			require.NoError(t, err)

			got, err := ReadSnake(parsed.BeginParse())
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestEncodeSnake_ChainsCells(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, MaxCellBytes+1)
	root := EncodeSnake(data)

	s := root.BeginParse()
	assert.Equal(t, uint(MaxCellBytes*8), s.BitsLeft())
	assert.Equal(t, 1, int(s.RefsNum()))
}

func TestReadAllBytes_RejectsUnalignedTail(t *testing.T) {
	c := cell.BeginCell().MustStoreUInt(0xA, 4).EndCell()

	_, err := ReadAllBytes(c.BeginParse())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestReadSnake_RejectsBranching(t *testing.T) {
	leaf := cell.BeginCell().MustStoreUInt(1, 8).EndCell()
	c := cell.BeginCell().
		MustStoreUInt(2, 8).
		MustStoreRef(leaf).
		MustStoreRef(leaf).
		EndCell()

	_, err := ReadSnake(c.BeginParse())
	assert.ErrorIs(t, err, ErrDecode)
}

func TestParseCell_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not hex", input: "zz"},
		{name: "empty", input: ""},
		{name: "not a boc", input: "deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCell(tt.input)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestAddressRoundTrip(t *testing.T) {
	addr := testAddress(0xde)

	b := cell.BeginCell()
	require.NoError(t, WriteAddress(b, addr))
	parsed, err := ParseCell(ToHex(b.EndCell()))
	require.NoError(t, err)

	got, err := ReadAddress(parsed.BeginParse())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Raw(addr), Raw(got))
}

func TestReadAddress_None(t *testing.T) {
	b := cell.BeginCell()
	require.NoError(t, WriteAddress(b, nil))

	got, err := ReadAddress(b.EndCell().BeginParse())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadAddress_UnsupportedTag(t *testing.T) {
	c := cell.BeginCell().MustStoreUInt(0b11, 2).MustStoreUInt(0, 32).EndCell()

	_, err := ReadAddress(c.BeginParse())
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDictionaryRoundTrip(t *testing.T) {
	entries := []DictEntry{
		{Key: 7, Address: testAddress(0x07)},
		{Key: 0, Address: testAddress(0x00)},
		{Key: 300, Address: testAddress(0x2c)},
		{Key: 1, Address: testAddress(0x01)},
	}

	root, err := EncodeDictionary(16, entries)
	require.NoError(t, err)

	parsed, err := ParseCell(ToHex(root))
	require.NoError(t, err)

	got, err := ReadDictionary(parsed, 16)
	require.NoError(t, err)
	require.Len(t, got, len(entries))

	wantKeys := []uint64{0, 1, 7, 300}
	for i, e := range got {
		assert.Equal(t, wantKeys[i], e.Key)
	}
	assert.Equal(t, Raw(testAddress(0x00)), Raw(got[0].Address))
	assert.Equal(t, Raw(testAddress(0x2c)), Raw(got[3].Address))
}

func TestReadDictionary_Empty(t *testing.T) {
	root, err := EncodeDictionary(16, nil)
	require.NoError(t, err)
	assert.Nil(t, root)

	got, err := ReadDictionary(nil, 16)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestToHex_Nil(t *testing.T) {
	assert.Equal(t, "", ToHex(nil))
	assert.False(t, strings.Contains(ToHex(cell.BeginCell().EndCell()), " "))
}

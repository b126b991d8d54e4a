// Package ton provides the TON chain primitives used by the echoes client:
// decoding of getter payloads (cells, snake data, dictionaries), address forms
// and the create-piece message codec.
package ton

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// ErrDecode is returned for malformed cell payloads.
var ErrDecode = errors.New("cell decode error")

// MaxCellBytes is the byte capacity of one cell payload (1023 bits).
const MaxCellBytes = 127

// Address tags of MsgAddress.
const (
	addrTagNone = 0b00
	addrTagStd  = 0b10
)

// DictEntry is a single key/address pair of a uint-keyed dictionary.
type DictEntry struct {
	Key     uint64
	Address *address.Address
}

// ParseCell deserializes a hex encoded bag of cells into its root cell.
func ParseCell(hexData string) (*cell.Cell, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexData), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %v", ErrDecode, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	root, err := cell.FromBOC(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return root, nil
}

// ReadAddress consumes a MsgAddress from the front of the slice.
// addr_none yields a nil address and no error.
func ReadAddress(s *cell.Slice) (*address.Address, error) {
	tag, err := s.LoadUInt(2)
	if err != nil {
		return nil, fmt.Errorf("%w: address tag: %v", ErrDecode, err)
	}

	switch tag {
	case addrTagNone:
		return nil, nil
	case addrTagStd:
	default:
		return nil, fmt.Errorf("%w: unsupported address tag %02b", ErrDecode, tag)
	}

	anycast, err := s.LoadBoolBit()
	if err != nil {
		return nil, fmt.Errorf("%w: address anycast: %v", ErrDecode, err)
	}
	if anycast {
		return nil, fmt.Errorf("%w: anycast addresses are not supported", ErrDecode)
	}

	wc, err := s.LoadInt(8)
	if err != nil {
		return nil, fmt.Errorf("%w: address workchain: %v", ErrDecode, err)
	}
	data, err := s.LoadSlice(256)
	if err != nil {
		return nil, fmt.Errorf("%w: address hash: %v", ErrDecode, err)
	}

	return address.NewAddress(0, byte(int8(wc)), data), nil
}

// ReadAllBytes drains the remaining payload of the current cell.
func ReadAllBytes(s *cell.Slice) ([]byte, error) {
	bits := s.BitsLeft()
	if bits%8 != 0 {
		return nil, fmt.Errorf("%w: %d trailing bits are not byte aligned", ErrDecode, bits%8)
	}
	if bits == 0 {
		return []byte{}, nil
	}
	data, err := s.LoadSlice(bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}

// ReadSnake reads a value threaded through a chain of cells: all bytes of the
// current cell, then the single child reference, until no reference remains.
func ReadSnake(s *cell.Slice) ([]byte, error) {
	var out []byte
	for depth := 0; ; depth++ {
		chunk, err := ReadAllBytes(s)
		if err != nil {
			return nil, fmt.Errorf("snake cell %d: %w", depth, err)
		}
		out = append(out, chunk...)

		switch refs := s.RefsNum(); {
		case refs == 0:
			if out == nil {
				out = []byte{}
			}
			return out, nil
		case refs > 1:
			return nil, fmt.Errorf("%w: snake cell %d has %d references", ErrDecode, depth, refs)
		}

		next, err := s.LoadRef()
		if err != nil {
			return nil, fmt.Errorf("%w: snake cell %d: %v", ErrDecode, depth, err)
		}
		s = next
	}
}

// ReadDictionary decodes a dictionary rooted at root with keyBits wide
// unsigned keys and address values. Entries come back in ascending key order.
func ReadDictionary(root *cell.Cell, keyBits uint) ([]DictEntry, error) {
	if root == nil {
		return []DictEntry{}, nil
	}

	dict, err := root.BeginParse().ToDict(keyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: dictionary: %v", ErrDecode, err)
	}

	kvs, err := dict.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: dictionary entries: %v", ErrDecode, err)
	}

	entries := make([]DictEntry, 0, len(kvs))
	for _, kv := range kvs {
		key, err := kv.Key.LoadUInt(keyBits)
		if err != nil {
			return nil, fmt.Errorf("%w: dictionary key: %v", ErrDecode, err)
		}
		addr, err := ReadAddress(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("dictionary value %d: %w", key, err)
		}
		if addr == nil {
			return nil, fmt.Errorf("%w: dictionary value %d is addr_none", ErrDecode, key)
		}
		entries = append(entries, DictEntry{Key: key, Address: addr})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// EncodeSnake stores data in a chain of cells, MaxCellBytes per cell.
func EncodeSnake(data []byte) *cell.Cell {
	var next *cell.Cell
	// Build from the tail so every cell can reference its successor.
	chunks := (len(data) + MaxCellBytes - 1) / MaxCellBytes
	for i := chunks - 1; i >= 0; i-- {
		end := (i + 1) * MaxCellBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i*MaxCellBytes : end]

		b := cell.BeginCell().MustStoreSlice(chunk, uint(len(chunk))*8)
		if next != nil {
			b.MustStoreRef(next)
		}
		next = b.EndCell()
	}
	if next == nil {
		return cell.BeginCell().EndCell()
	}
	return next
}

// WriteAddress stores addr as a MsgAddress; nil stores addr_none.
func WriteAddress(b *cell.Builder, addr *address.Address) error {
	if addr == nil {
		return b.StoreUInt(addrTagNone, 2)
	}
	if err := b.StoreUInt(addrTagStd, 2); err != nil {
		return err
	}
	if err := b.StoreBoolBit(false); err != nil {
		return err
	}
	if err := b.StoreInt(int64(addr.Workchain()), 8); err != nil {
		return err
	}
	return b.StoreSlice(addr.Data(), 256)
}

// EncodeDictionary builds a dictionary with keyBits wide keys and address
// values. An empty entry list yields a nil cell.
func EncodeDictionary(keyBits uint, entries []DictEntry) (*cell.Cell, error) {
	dict := cell.NewDict(keyBits)
	for _, e := range entries {
		b := cell.BeginCell()
		if err := WriteAddress(b, e.Address); err != nil {
			return nil, fmt.Errorf("dictionary value %d: %w", e.Key, err)
		}
		if err := dict.SetIntKey(new(big.Int).SetUint64(e.Key), b.EndCell()); err != nil {
			return nil, fmt.Errorf("dictionary key %d: %w", e.Key, err)
		}
	}
	return dict.AsCell(), nil
}

// ToHex serializes a cell into the hex BOC form used by the indexing API.
func ToHex(c *cell.Cell) string {
	if c == nil {
		return ""
	}
	return hex.EncodeToString(c.ToBOC())
}

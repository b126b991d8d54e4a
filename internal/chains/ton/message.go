package ton

import (
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// OpCreatePiece is the registry opcode of the CreatePiece message.
const OpCreatePiece uint32 = 0x4a1e5c73

// CreatePiece asks the registry to mint a piece into the sender's vault.
type CreatePiece struct {
	PieceData   []byte
	RemixedFrom *address.Address
}

// BuildCreatePiece encodes msg as op:uint32 ^pieceData remixedFrom:MsgAddress.
func BuildCreatePiece(msg CreatePiece) (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := b.StoreUInt(uint64(OpCreatePiece), 32); err != nil {
		return nil, fmt.Errorf("storing opcode: %w", err)
	}
	if err := b.StoreRef(EncodeSnake(msg.PieceData)); err != nil {
		return nil, fmt.Errorf("storing piece data: %w", err)
	}
	if err := WriteAddress(b, msg.RemixedFrom); err != nil {
		return nil, fmt.Errorf("storing remixed from: %w", err)
	}
	return b.EndCell(), nil
}

// ParseCreatePiece decodes a CreatePiece message body.
func ParseCreatePiece(c *cell.Cell) (*CreatePiece, error) {
	s := c.BeginParse()

	op, err := s.LoadUInt(32)
	if err != nil {
		return nil, fmt.Errorf("%w: opcode: %v", ErrDecode, err)
	}
	if uint32(op) != OpCreatePiece {
		return nil, fmt.Errorf("%w: unexpected opcode 0x%08x", ErrDecode, op)
	}

	ref, err := s.LoadRef()
	if err != nil {
		return nil, fmt.Errorf("%w: piece data ref: %v", ErrDecode, err)
	}
	data, err := ReadSnake(ref)
	if err != nil {
		return nil, fmt.Errorf("piece data: %w", err)
	}

	remix, err := ReadAddress(s)
	if err != nil {
		return nil, fmt.Errorf("remixed from: %w", err)
	}

	return &CreatePiece{PieceData: data, RemixedFrom: remix}, nil
}

package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// timeLayout is a fixed-width timestamp so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// encodeRecord serializes a piece record, normalizing nil maps so the stored
// JSON always carries both objects.
func encodeRecord(rec *PieceRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidValue)
	}
	out := *rec
	if out.PieceData == nil {
		out.PieceData = map[string]*string{}
	}
	if out.PieceRemixData == nil {
		out.PieceRemixData = map[string]*string{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding piece record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*PieceRecord, error) {
	var rec PieceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding piece record: %w", err)
	}
	if rec.PieceData == nil {
		rec.PieceData = map[string]*string{}
	}
	if rec.PieceRemixData == nil {
		rec.PieceRemixData = map[string]*string{}
	}
	return &rec, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}

// prepareTransaction fills in defaults before a transaction is stored.
func prepareTransaction(tx *Transaction) error {
	if tx == nil || tx.WalletAddress == "" || tx.Request == "" {
		return fmt.Errorf("%w: incomplete transaction", ErrInvalidValue)
	}
	if tx.ID == "" {
		tx.ID = generateID()
	}
	if tx.Status == "" {
		tx.Status = TxStatusPending
	}
	return nil
}

// escapeLike escapes LIKE wildcards so a key prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

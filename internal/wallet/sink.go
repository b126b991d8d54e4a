package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pendergraft/echoes/internal/storage"
)

// Request is a transaction waiting to be signed by the wallet owner.
type Request struct {
	ID          string      `json:"id"`
	From        string      `json:"from"`
	Transaction Transaction `json:"transaction"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// TransactionSink receives transactions produced by a LocalSession.
type TransactionSink interface {
	Submit(ctx context.Context, req Request) error
}

// FileSink writes each request as a JSON file into a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing into dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Path returns the file a request with the given ID is written to.
func (f *FileSink) Path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

func (f *FileSink) Submit(ctx context.Context, req Request) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("creating outbox: %w", err)
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	if err := os.WriteFile(f.Path(req.ID), data, 0600); err != nil {
		return fmt.Errorf("writing request: %w", err)
	}
	return nil
}

// StoreSink records requests in the transaction log.
type StoreSink struct {
	store storage.TransactionStore
}

// NewStoreSink creates a sink backed by store.
func NewStoreSink(store storage.TransactionStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Submit(ctx context.Context, req Request) error {
	data, err := json.Marshal(req.Transaction)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return s.store.RecordTransaction(ctx, &storage.Transaction{
		ID:            req.ID,
		WalletAddress: req.From,
		Request:       string(data),
		Status:        storage.TxStatusPending,
		ValidUntil:    req.Transaction.ValidUntil,
	})
}

// MultiSink submits to every sink in order. All sinks are attempted.
type MultiSink []TransactionSink

func (m MultiSink) Submit(ctx context.Context, req Request) error {
	var errs []error
	for _, s := range m {
		if err := s.Submit(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package indexertest serves the getter endpoint of a TON indexing API from
// memory, with EchoRegistry contracts that tests populate directly.
package indexertest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/contracts"
	"github.com/pendergraft/echoes/internal/gateway"
)

// Fee and security parameters returned by the registry getters.
const (
	DeployValue     = 50_000_000
	MessageValue    = 10_000_000
	MinActionFee    = 5_000_000
	CoolDownSeconds = 30
)

type piece struct {
	data        []byte
	remixedFrom *address.Address
}

// Indexer is a running fake indexing API.
type Indexer struct {
	*httptest.Server

	Registry *address.Address

	mu     sync.Mutex
	vaults map[string]*address.Address   // raw user -> vault
	pieces map[string][]*address.Address // raw vault -> pieces in key order
	data   map[string]piece              // raw piece -> content
	calls  map[string]int                // method -> count
	failed map[string]bool               // raw address -> every getter fails
}

// Address returns a basechain address whose hash is fill repeated.
func Address(fill byte) *address.Address {
	return address.NewAddress(0, 0, bytes.Repeat([]byte{fill}, 32))
}

// New starts an indexer serving a registry at Address(0x01). It is closed
// with the test.
func New(t interface {
	Helper()
	Cleanup(func())
}) *Indexer {
	t.Helper()

	idx := &Indexer{
		Registry: Address(0x01),
		vaults:   make(map[string]*address.Address),
		pieces:   make(map[string][]*address.Address),
		data:     make(map[string]piece),
		calls:    make(map[string]int),
		failed:   make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Get("/{address}/methods/{method}", idx.handleGetter)
	idx.Server = httptest.NewServer(r)
	t.Cleanup(idx.Close)
	return idx
}

// RegistryAddress is the registry in raw form, ready for configuration.
func (idx *Indexer) RegistryAddress() string {
	return ton.Raw(idx.Registry)
}

// SetVault assigns a vault to user.
func (idx *Indexer) SetVault(user, vault *address.Address) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vaults[ton.Raw(user)] = vault
	if _, ok := idx.pieces[ton.Raw(vault)]; !ok {
		idx.pieces[ton.Raw(vault)] = nil
	}
}

// AddPiece appends a piece to vault. remixedFrom may be nil.
func (idx *Indexer) AddPiece(vault, p *address.Address, data []byte, remixedFrom *address.Address) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.pieces[ton.Raw(vault)] = append(idx.pieces[ton.Raw(vault)], p)
	idx.data[ton.Raw(p)] = piece{data: data, remixedFrom: remixedFrom}
}

// Fail makes every getter on addr answer with a server error.
func (idx *Indexer) Fail(addr *address.Address) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.failed[ton.Raw(addr)] = true
}

// Calls returns how many times method was called.
func (idx *Indexer) Calls(method string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.calls[method]
}

func (idx *Indexer) handleGetter(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	raw, err := ton.NormalizeRaw(chi.URLParam(r, "address"))
	if err != nil {
		http.Error(w, `{"error":"invalid address"}`, http.StatusBadRequest)
		return
	}
	var args []string
	if a := r.URL.Query().Get("args"); a != "" {
		args = strings.Split(a, ",")
	}

	idx.mu.Lock()
	idx.calls[method]++
	failing := idx.failed[raw]
	stack, found, err := idx.stack(raw, method, args)
	idx.mu.Unlock()

	switch {
	case failing:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	case err != nil:
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	case !found:
		// Uninitialized accounts fail the getter with a non-zero exit code.
		writeResult(w, gateway.GetterResult{Success: false, ExitCode: -13, Stack: []gateway.StackEntry{}})
		return
	}
	writeResult(w, gateway.GetterResult{Success: true, Stack: stack})
}

// stack computes the getter result; found is false for unknown accounts.
func (idx *Indexer) stack(raw, method string, args []string) ([]gateway.StackEntry, bool, error) {
	if raw == ton.Raw(idx.Registry) {
		switch method {
		case contracts.MethodFeeParams:
			return []gateway.StackEntry{num(DeployValue), num(MessageValue)}, true, nil
		case contracts.MethodSecurityParams:
			return []gateway.StackEntry{num(MinActionFee), num(CoolDownSeconds)}, true, nil
		case contracts.MethodVaultAddress:
			if len(args) != 1 {
				return nil, false, fmt.Errorf("getVaultAddress takes one argument")
			}
			user, err := ton.NormalizeRaw(args[0])
			if err != nil {
				return nil, false, err
			}
			e, err := addressEntry(idx.vaults[user])
			return []gateway.StackEntry{e}, true, err
		}
		return nil, false, nil
	}

	if list, ok := idx.pieces[raw]; ok {
		switch method {
		case contracts.MethodPieceCount:
			return []gateway.StackEntry{num(uint64(len(list)))}, true, nil
		case contracts.MethodPieces:
			if len(list) == 0 {
				return []gateway.StackEntry{{Type: gateway.StackNull}}, true, nil
			}
			entries := make([]ton.DictEntry, len(list))
			for i, a := range list {
				entries[i] = ton.DictEntry{Key: uint64(i), Address: a}
			}
			root, err := ton.EncodeDictionary(contracts.PieceKeyBits, entries)
			if err != nil {
				return nil, false, err
			}
			return []gateway.StackEntry{{Type: gateway.StackCell, Cell: ton.ToHex(root)}}, true, nil
		}
		return nil, false, nil
	}

	if p, ok := idx.data[raw]; ok {
		switch method {
		case contracts.MethodPieceData:
			return []gateway.StackEntry{{Type: gateway.StackCell, Cell: ton.ToHex(ton.EncodeSnake(p.data))}}, true, nil
		case contracts.MethodRemixedFrom:
			e, err := addressEntry(p.remixedFrom)
			return []gateway.StackEntry{e}, true, err
		}
	}
	return nil, false, nil
}

func num(n uint64) gateway.StackEntry {
	return gateway.StackEntry{Type: gateway.StackNum, Num: fmt.Sprintf("0x%x", n)}
}

func addressEntry(addr *address.Address) (gateway.StackEntry, error) {
	b := cell.BeginCell()
	if err := ton.WriteAddress(b, addr); err != nil {
		return gateway.StackEntry{}, err
	}
	return gateway.StackEntry{Type: gateway.StackCell, Cell: ton.ToHex(b.EndCell())}, nil
}

func writeResult(w http.ResponseWriter, res gateway.GetterResult) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

package syncer

import (
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/echoes/internal/cache"
	"github.com/pendergraft/echoes/internal/observability/metrics"
	"github.com/pendergraft/echoes/internal/state"
)

// PieceStatus is the state of one piece fetch task.
type PieceStatus int

const (
	PiecePending PieceStatus = iota
	PieceSucceeded
	PieceFailed
)

func (s PieceStatus) String() string {
	switch s {
	case PiecePending:
		return "pending"
	case PieceSucceeded:
		return "succeeded"
	case PieceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// dispatchPieces starts a fetch task for every address that has neither a
// content entry in the store nor a task in this session. A nil content entry
// counts as known: the piece was attempted and is not retried. Tasks run
// independently with no ordering between siblings.
func (e *Engine) dispatchPieces(gen uint64, addrs []string) {
	known := e.store.GetState().PieceData

	e.guard.RLock()
	defer e.guard.RUnlock()
	if e.generation != gen {
		return
	}

	e.mu.Lock()
	var todo []string
	for _, addr := range addrs {
		if _, ok := known[addr]; ok {
			continue
		}
		if _, ok := e.pieces[addr]; ok {
			continue
		}
		e.pieces[addr] = PiecePending
		todo = append(todo, addr)
	}
	e.mu.Unlock()

	for _, addr := range todo {
		e.goTracked(func() {
			e.fetchPiece(gen, addr)
		})
	}
}

// fetchPiece loads content and remix parent of addr and merges them into the
// live store state. A failure records nil for both so the piece is known.
func (e *Engine) fetchPiece(gen uint64, addr string) {
	var data, remix *string

	g, ctx := errgroup.WithContext(e.ctx)
	g.Go(func() error {
		var err error
		data, err = e.reader.GetPieceData(ctx, addr)
		return err
	})
	g.Go(func() error {
		var err error
		remix, err = e.reader.GetRemixedFromAddress(ctx, addr)
		return err
	})

	status := PieceSucceeded
	if err := g.Wait(); err != nil {
		e.logger.Warn("piece fetch failed", "piece", addr, "error", err)
		data, remix = nil, nil
		status = PieceFailed
	}

	committed := e.commit(gen, func(st *state.ContractSnapshot) {
		if st.PieceData == nil {
			st.PieceData = make(map[string]*string)
		}
		if st.PieceRemixData == nil {
			st.PieceRemixData = make(map[string]*string)
		}
		st.PieceData[addr] = data
		st.PieceRemixData[addr] = remix
		if !slices.Contains(st.PieceAddresses, addr) {
			st.PieceAddresses = append(st.PieceAddresses, addr)
		}
	})
	if !committed {
		metrics.PieceFetch("stale")
		e.logger.Debug("discarding piece from previous session", "piece", addr)
		return
	}
	metrics.PieceFetch(status.String())

	e.guard.RLock()
	e.mu.Lock()
	if e.generation == gen {
		e.pieces[addr] = status
	}
	e.mu.Unlock()
	e.guard.RUnlock()

	e.persist(gen)
}

// persist writes the store's current piece maps to the cache. Saves are
// serialized and always read the live state, so the last save wins with the
// newest maps.
func (e *Engine) persist(gen uint64) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.guard.RLock()
	defer e.guard.RUnlock()
	if e.generation != gen || e.user == "" {
		return
	}

	st := e.store.GetState()
	e.cache.SavePieces(e.ctx, e.user, cache.Pieces{
		PieceData:      st.PieceData,
		PieceRemixData: st.PieceRemixData,
		PieceAddresses: st.PieceAddresses,
	})
}

// newAddresses returns the addresses of remote missing from current, in
// remote order.
func newAddresses(remote, current []string) []string {
	var fresh []string
	for _, addr := range remote {
		if !slices.Contains(current, addr) {
			fresh = append(fresh, addr)
		}
	}
	return fresh
}

// mergeAddresses returns list followed by the addresses the store already
// lists and then any address it only holds data for, so nothing is dropped
// and the piece maps never reference an unlisted address.
func mergeAddresses(list []string, st *state.ContractSnapshot) []string {
	out := slices.Clone(list)
	if out == nil {
		out = []string{}
	}
	for _, addr := range st.PieceAddresses {
		if !slices.Contains(out, addr) {
			out = append(out, addr)
		}
	}
	var extra []string
	for _, m := range []map[string]*string{st.PieceData, st.PieceRemixData} {
		for addr := range m {
			if !slices.Contains(out, addr) && !slices.Contains(extra, addr) {
				extra = append(extra, addr)
			}
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// fillMissing copies entries of src whose keys dst lacks.
func fillMissing(dst, src map[string]*string) map[string]*string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]*string, len(src))
	}
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

package metrics

import "time"

// GatewayCall records a contract getter call and its latency.
func GatewayCall(method, status string, d time.Duration) {
	if !enabled {
		return
	}
	gatewayCallsTotal.WithLabelValues(method, status).Inc()
	gatewayCallDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SchedulerQueueDepth sets the current scheduler queue depth.
func SchedulerQueueDepth(depth int) {
	if !enabled {
		return
	}
	schedulerQueueDepth.Set(float64(depth))
}

// SyncFetch records the outcome of a full contract info fetch.
func SyncFetch(result string) {
	if !enabled {
		return
	}
	syncFetchTotal.WithLabelValues(result).Inc()
}

// SyncPoll records the outcome of a vault poll tick.
func SyncPoll(result string) {
	if !enabled {
		return
	}
	syncPollTotal.WithLabelValues(result).Inc()
}

// PieceFetch records the outcome of a per-piece fetch.
func PieceFetch(result string) {
	if !enabled {
		return
	}
	pieceFetchTotal.WithLabelValues(result).Inc()
}

// CacheOp records a local cache operation.
func CacheOp(op, status string) {
	if !enabled {
		return
	}
	cacheOpsTotal.WithLabelValues(op, status).Inc()
}

// WalletTransaction records a submitted create-piece transaction.
func WalletTransaction(status string) {
	if !enabled {
		return
	}
	walletTransactionsTotal.WithLabelValues(status).Inc()
}

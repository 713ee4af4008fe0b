// Package observability tracks query statistics for index advice and
// performance monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks predicate frequency per column and how often backend
// order hints spare the engine a buffered sort.
type QueryStats struct {
	mu            sync.RWMutex
	predicateFreq map[string]*ColumnStats
	window        time.Duration

	orderHintHits   int64
	orderHintMisses int64
	queries         int64
	mutations       int64
}

// ColumnStats holds per-column predicate statistics.
type ColumnStats struct {
	Column    string
	Frequency int64
	LastSeen  time.Time
	Operators map[string]int // operator → count (e.g., "=" → 5, "IN" → 2)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Queries         int64
	Mutations       int64
	OrderHintHits   int64
	OrderHintMisses int64
	TopPredicates   []ColumnStats
}

// NewQueryStats creates a statistics tracker. window bounds how long an idle
// column entry survives Prune.
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		predicateFreq: make(map[string]*ColumnStats),
		window:        window,
	}
}

// RecordPredicate records one predicate evaluation for a column. O(1) and
// safe for concurrent use.
func (q *QueryStats) RecordPredicate(column, operator string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats, exists := q.predicateFreq[column]
	if !exists {
		stats = &ColumnStats{
			Column:    column,
			Operators: make(map[string]int),
		}
		q.predicateFreq[column] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Operators[operator]++
}

// RecordOrderHint records whether a backend order assertion satisfied the
// requested ordering (hit) or the engine fell back to a buffered sort (miss).
func (q *QueryStats) RecordOrderHint(hit bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if hit {
		q.orderHintHits++
	} else {
		q.orderHintMisses++
	}
}

// RecordQuery counts one executed read statement.
func (q *QueryStats) RecordQuery() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries++
}

// RecordMutation counts one executed write statement.
func (q *QueryStats) RecordMutation() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mutations++
}

// GetTopPredicates returns the top N columns by predicate frequency, most
// frequent first. The result is a deep copy.
func (q *QueryStats) GetTopPredicates(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.predicateFreq) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(q.predicateFreq))
	for _, s := range q.predicateFreq {
		cp := ColumnStats{
			Column:    s.Column,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Operators: make(map[string]int, len(s.Operators)),
		}
		for op, count := range s.Operators {
			cp.Operators[op] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Frequency > stats[j].Frequency
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Snapshot returns a copy of all counters plus the top ten predicate columns.
func (q *QueryStats) Snapshot() Snapshot {
	q.mu.RLock()
	queries := q.queries
	mutations := q.mutations
	hits := q.orderHintHits
	misses := q.orderHintMisses
	q.mu.RUnlock()

	return Snapshot{
		Queries:         queries,
		Mutations:       mutations,
		OrderHintHits:   hits,
		OrderHintMisses: misses,
		TopPredicates:   q.GetTopPredicates(10),
	}
}

// Prune drops column entries idle longer than the window. Call periodically.
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)
	for col, stats := range q.predicateFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.predicateFreq, col)
		}
	}
}

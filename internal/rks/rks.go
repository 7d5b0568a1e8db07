// SPDX-License-Identifier: MIT

// Package rks implements the RKS ("Ranking Score") skill metric: per-chart
// scoring, player-level Best27+AP3 aggregation with deterministic top-K
// selection, and the push-ACC inverse search that answers "how much
// accuracy on this chart raises my displayed RKS by 0.01".
package rks

import (
	"math"
	"sort"

	"github.com/phicloud/phi-backend/internal/catalog"
)

// bestCount and apCount are the B27/AP3 container capacities; totalDivisor
// is the fixed denominator (spec §4.3: "total_rks = (Best27.sum + AP3.sum) / 30").
const (
	bestCount     = 27
	apCount       = 3
	totalDivisor  = float64(bestCount + apCount)
	apThreshold   = 100.0 // acc_percent >= 100 qualifies for AP3
	passThreshold = 0.70  // acc_decimal below this scores 0
)

// NormalizeAccuracy accepts an accuracy expressed either as a 0..1 decimal
// fraction or a 0..100 percentage and returns the decimal fraction. Save
// files encode both; any value <= 1.5 is treated as already-decimal since
// no legitimate percentage falls that low.
func NormalizeAccuracy(acc float64) float64 {
	if acc <= 1.5 {
		return acc
	}
	return acc / 100
}

// CalculateSingleChartRKS computes RKS from a decimal-fraction accuracy
// (0..1) and a chart constant. Below the pass threshold the chart
// contributes zero.
func CalculateSingleChartRKS(accDecimal, constant float64) float64 {
	if accDecimal < passThreshold {
		return 0
	}
	rks := math.Pow((100*accDecimal-55)/45, 2) * constant
	if !isFinitePositive(rks) {
		return 0
	}
	return rks
}

// CalculateChartRKS is the percentage-unit sibling of CalculateSingleChartRKS:
// accPercent is 0..100.
func CalculateChartRKS(accPercent, constant float64) float64 {
	if accPercent < passThreshold*100 {
		return 0
	}
	rks := math.Pow((accPercent-55)/45, 2) * constant
	if !isFinitePositive(rks) {
		return 0
	}
	return rks
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// ChartRankingScore identifies one chart's contribution to a player's
// aggregate RKS.
type ChartRankingScore struct {
	SongID     string
	Difficulty catalog.Difficulty
	RKS        float64
}

// RksRecord is the flattened, uniform record the aggregator and push-ACC
// solver both operate over: one row per (song, difficulty) chart played.
// Acc is a percentage (0..100), matching the wire/display unit; callers
// holding a decimal fraction must scale it first (see NormalizeAccuracy).
type RksRecord struct {
	SongID        string
	Difficulty    catalog.Difficulty
	Score         int64
	Acc           float64
	RKS           float64
	ChartConstant float64
	IsFullCombo   bool
}

// AccPercent returns the accuracy as a 0..100 percentage.
func (r RksRecord) AccPercent() float64 {
	return r.Acc
}

// ChartID is the composite "<song_id>-<DIFF>" identifier used on the wire
// and as the deterministic sort key for aggregation.
func (r RksRecord) ChartID() string {
	return r.SongID + "-" + r.Difficulty.String()
}

// PlayerRKSResult is the outcome of aggregating one player's records.
type PlayerRKSResult struct {
	TotalRKS  float64
	B30Charts []ChartRankingScore
}

// topKEntry is one slot in a bounded top-K container; scanIndex stabilizes
// tie-breaking independent of iteration order.
type topKEntry struct {
	record    RksRecord
	scanIndex int
}

// topKChartScores is a fixed-capacity top-K selector. Insert is O(k); for
// k in {3, 27} this beats sort-then-truncate for the sizes in play (a few
// hundred charts per player) and avoids allocating a full sorted slice per
// aggregation.
type topKChartScores struct {
	capacity int
	entries  []topKEntry
	sum      float64
}

func newTopKChartScores(capacity int) *topKChartScores {
	return &topKChartScores{capacity: capacity, entries: make([]topKEntry, 0, capacity)}
}

// better reports whether a is a stronger keep-candidate than b: higher RKS
// wins, and on an exact tie the earlier scanIndex wins (stable, independent
// of map/slice iteration order upstream).
func better(a, b topKEntry) bool {
	if a.record.RKS != b.record.RKS {
		return a.record.RKS > b.record.RKS
	}
	return a.scanIndex < b.scanIndex
}

func (t *topKChartScores) insert(e topKEntry) {
	if len(t.entries) < t.capacity {
		t.entries = append(t.entries, e)
		t.sum += e.record.RKS
		return
	}
	// find current worst
	worstIdx := 0
	for i := 1; i < len(t.entries); i++ {
		if better(t.entries[worstIdx], t.entries[i]) {
			worstIdx = i
		}
	}
	if better(e, t.entries[worstIdx]) {
		t.sum -= t.entries[worstIdx].record.RKS
		t.sum += e.record.RKS
		t.entries[worstIdx] = e
	}
}

func (t *topKChartScores) scores() []ChartRankingScore {
	out := make([]ChartRankingScore, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, ChartRankingScore{
			SongID:     e.record.SongID,
			Difficulty: e.record.Difficulty,
			RKS:        e.record.RKS,
		})
	}
	return out
}

// CalculatePlayerRKS aggregates a player's chart records into a total RKS
// and the contributing Best27+AP3 chart list. records need not be
// pre-sorted; keys are sorted internally so the result is independent of
// the caller's iteration order.
func CalculatePlayerRKS(records []RksRecord) PlayerRKSResult {
	sorted := make([]RksRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SongID != sorted[j].SongID {
			return sorted[i].SongID < sorted[j].SongID
		}
		return sorted[i].Difficulty < sorted[j].Difficulty
	})

	best := newTopKChartScores(bestCount)
	ap := newTopKChartScores(apCount)

	for i, r := range sorted {
		if r.RKS <= 0 {
			continue
		}
		best.insert(topKEntry{record: r, scanIndex: i})
		if r.AccPercent() >= apThreshold {
			ap.insert(topKEntry{record: r, scanIndex: i})
		}
	}

	total := (best.sum + ap.sum) / totalDivisor

	charts := append(best.scores(), ap.scores()...)
	return PlayerRKSResult{TotalRKS: total, B30Charts: charts}
}

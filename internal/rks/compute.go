// SPDX-License-Identifier: MIT

package rks

import (
	"math"
	"sort"
	"strings"

	"github.com/phicloud/phi-backend/internal/catalog"
)

// SortDescendingByRKS returns a copy of records ordered by RKS descending,
// the precondition every PushAccBatchSolver operation relies on.
func SortDescendingByRKS(records []RksRecord) []RksRecord {
	sorted := make([]RksRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RKS > sorted[j].RKS
	})
	return sorted
}

// CalculatePlayerRKSDetails returns both the exact total_rks and its
// two-decimal display rounding. records must already be sorted descending
// by RKS.
func CalculatePlayerRKSDetails(records []RksRecord) (exact, rounded float64) {
	if len(records) == 0 {
		return 0, 0
	}
	exact = exactTotalRKS(records)
	rounded = roundTo2(exact)
	return exact, rounded
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SplitChartID parses a composite "<song_id>-<DIFF>" chart ID as produced
// by RksRecord.ChartID.
func SplitChartID(chartIDFull string) (songID string, diff catalog.Difficulty, ok bool) {
	i := strings.LastIndex(chartIDFull, "-")
	if i < 0 {
		return "", 0, false
	}
	songID, diffStr := chartIDFull[:i], chartIDFull[i+1:]
	d, err := catalog.ParseDifficulty(diffStr)
	if err != nil {
		return "", 0, false
	}
	return songID, d, true
}

// CalculateTargetChartPushAcc resolves the push-ACC hint for one chart
// identified by its composite ID, against a full set of records already
// sorted descending by RKS.
func CalculateTargetChartPushAcc(targetChartIDFull string, targetChartConstant float64, allSortedRecords []RksRecord) *PushAccHint {
	songID, diff, ok := SplitChartID(targetChartIDFull)
	if !ok {
		hint := UnreachableHint
		return &hint
	}

	targetIndex := -1
	for i, r := range allSortedRecords {
		if r.SongID == songID && r.Difficulty == diff {
			targetIndex = i
			break
		}
	}
	if targetIndex < 0 {
		hint := UnreachableHint
		return &hint
	}

	solver := NewPushAccBatchSolver(allSortedRecords)
	return solver.SolveForIndex(targetIndex, targetChartConstant)
}

// CalculateAllPushHints computes the push-ACC hint for every non-100%
// record in one pass, reusing a single PushAccBatchSolver. sortedRecords
// must already be sorted descending by RKS. The result is keyed by
// RksRecord.ChartID().
func CalculateAllPushHints(sortedRecords []RksRecord) map[string]PushAccHint {
	out := make(map[string]PushAccHint, len(sortedRecords))
	solver := NewPushAccBatchSolver(sortedRecords)
	for idx, r := range sortedRecords {
		if r.Acc >= 100.0 {
			continue
		}
		hint := solver.SolveForIndex(idx, r.ChartConstant)
		if hint != nil {
			out[r.ChartID()] = *hint
		}
	}
	return out
}

// HintOrLegacyDefault returns the solved hint for a chart, or
// UnreachableHint when there is none; it never returns AlreadyPhi.
// Already-full-ACC charts and charts with no usable constant never get a
// solved hint, so callers assembling a save's push-ACC fields (FillRKS)
// fold those cases in themselves.
func HintOrLegacyDefault(hints map[string]PushAccHint, chartID string) PushAccHint {
	if h, ok := hints[chartID]; ok {
		return h
	}
	return UnreachableHint
}

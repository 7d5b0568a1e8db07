// SPDX-License-Identifier: MIT

package rks

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phicloud/phi-backend/internal/catalog"
)

func TestCalculateSingleChartRKS(t *testing.T) {
	assert.Equal(t, 0.0, CalculateSingleChartRKS(0.5, 10))
	assert.InDelta(t, 10.0, CalculateSingleChartRKS(1.0, 10), 1e-9)
}

func TestCalculateChartRKS(t *testing.T) {
	assert.Equal(t, 0.0, CalculateChartRKS(65, 10))
	assert.InDelta(t, 10.0, CalculateChartRKS(100, 10), 1e-9)
}

// Scenario 1 (spec §8): a single full-combo perfect chart contributes once
// to Best27 and once to AP3.
func TestCalculatePlayerRKS_Minimal(t *testing.T) {
	records := []RksRecord{
		{
			SongID:        "x",
			Difficulty:    catalog.IN,
			Acc:           100,
			ChartConstant: 10,
			RKS:           CalculateChartRKS(100, 10),
			IsFullCombo:   true,
		},
	}

	result := CalculatePlayerRKS(records)

	assert.InDelta(t, 20.0/30.0, result.TotalRKS, 1e-9)
	require.Len(t, result.B30Charts, 2)
	assert.Equal(t, "x", result.B30Charts[0].SongID)
	assert.Equal(t, "x", result.B30Charts[1].SongID)
}

func makeRecords(n int, acc, constant float64, diff catalog.Difficulty) []RksRecord {
	out := make([]RksRecord, n)
	for i := 0; i < n; i++ {
		out[i] = RksRecord{
			SongID:        "song",
			Difficulty:    diff,
			Acc:           acc,
			ChartConstant: constant,
			RKS:           CalculateChartRKS(acc, constant),
		}
	}
	return out
}

// Scenario 2: 26 charts at acc=99/constant=12 plus one at acc=70/constant=12;
// the low chart's hint must be a reachable TargetAcc in (70, 100).
func TestSolveForIndex_TargetAcc(t *testing.T) {
	records := make([]RksRecord, 0, 27)
	for i := 0; i < 26; i++ {
		records = append(records, RksRecord{
			SongID:        songID(i),
			Difficulty:    catalog.IN,
			Acc:           99,
			ChartConstant: 12,
			RKS:           CalculateChartRKS(99, 12),
		})
	}
	records = append(records, RksRecord{
		SongID:        "low",
		Difficulty:    catalog.IN,
		Acc:           70,
		ChartConstant: 12,
		RKS:           CalculateChartRKS(70, 12),
	})

	sorted := SortDescendingByRKS(records)
	lowIdx := indexOf(sorted, "low")
	require.GreaterOrEqual(t, lowIdx, 0)

	solver := NewPushAccBatchSolver(sorted)
	hint := solver.SolveForIndex(lowIdx, 12)
	require.NotNil(t, hint)
	require.Equal(t, KindTargetAcc, hint.Kind)
	assert.Greater(t, hint.Acc, 70.0)
	assert.LessOrEqual(t, hint.Acc, 100.0)
}

// Scenario 3: 29 charts at acc=99/constant=12 and one at acc=99/constant=1;
// the low-constant chart can only reach the threshold at 100%.
func TestSolveForIndex_PhiOnly(t *testing.T) {
	records := makeRecords(29, 99, 12, catalog.IN)
	records = append(records, RksRecord{
		SongID:        "low",
		Difficulty:    catalog.IN,
		Acc:           99,
		ChartConstant: 1,
		RKS:           CalculateChartRKS(99, 1),
	})
	for i := range records[:29] {
		records[i].SongID = songID(i)
	}

	sorted := SortDescendingByRKS(records)
	idx := indexOf(sorted, "low")
	require.GreaterOrEqual(t, idx, 0)

	solver := NewPushAccBatchSolver(sorted)
	hint := solver.SolveForIndex(idx, 1)
	require.NotNil(t, hint)
	assert.Equal(t, KindPhiOnly, hint.Kind)
}

// Scenario 4: same as scenario 3 but with 3 AP entries at constant=16, so
// even reaching 100% on the low chart never meets the threshold.
func TestSolveForIndex_Unreachable(t *testing.T) {
	records := makeRecords(26, 99, 12, catalog.IN)
	for i := range records {
		records[i].SongID = songID(i)
	}
	ap := makeRecords(3, 100, 16, catalog.IN)
	for i := range ap {
		ap[i].SongID = "ap" + songID(i)
	}
	records = append(records, ap...)
	records = append(records, RksRecord{
		SongID:        "low",
		Difficulty:    catalog.IN,
		Acc:           99,
		ChartConstant: 1,
		RKS:           CalculateChartRKS(99, 1),
	})

	sorted := SortDescendingByRKS(records)
	idx := indexOf(sorted, "low")
	require.GreaterOrEqual(t, idx, 0)

	solver := NewPushAccBatchSolver(sorted)
	hint := solver.SolveForIndex(idx, 1)
	require.NotNil(t, hint)
	assert.Equal(t, KindUnreachable, hint.Kind)
}

func TestPushAccHint_JSONRoundTrip(t *testing.T) {
	for _, h := range []PushAccHint{TargetAcc(87.654), PhiOnlyHint, UnreachableHint, AlreadyPhiHint} {
		data, err := h.MarshalJSON()
		require.NoError(t, err)
		var out PushAccHint
		require.NoError(t, out.UnmarshalJSON(data))
		assert.Equal(t, h, out)
	}
}

func TestPushAccHint_AsLegacyAcc(t *testing.T) {
	assert.Equal(t, 87.5, TargetAcc(87.5).AsLegacyAcc())
	assert.Equal(t, 100.0, PhiOnlyHint.AsLegacyAcc())
	assert.Equal(t, 100.0, UnreachableHint.AsLegacyAcc())
	assert.Equal(t, 100.0, AlreadyPhiHint.AsLegacyAcc())
}

// slowSimulate resimulates total_rks from scratch with a full top-K scan,
// mirroring the reference "simplified" solver used to cross-check the
// batch solver's incremental arithmetic.
func slowSimulate(targetIdx int, testAcc, targetConstant float64, records []RksRecord) float64 {
	simulatedRKS := CalculateChartRKS(testAcc, targetConstant)

	best := newTopKChartScores(27)
	ap := newTopKChartScores(3)
	scan := 0
	for i, r := range records {
		if i == targetIdx {
			continue
		}
		best.insert(topKEntry{record: r, scanIndex: scan})
		if r.Acc >= 100 {
			ap.insert(topKEntry{record: r, scanIndex: scan})
		}
		scan++
	}
	newRec := RksRecord{RKS: simulatedRKS, Acc: testAcc}
	best.insert(topKEntry{record: newRec, scanIndex: scan})
	if testAcc >= 100 {
		ap.insert(topKEntry{record: newRec, scanIndex: scan})
	}

	return (best.sum + ap.sum) / totalDivisor
}

// TestBatchSolverMatchesSlowSimulation is a randomized equivalence check
// between the O(1)-per-probe batch solver and a from-scratch resimulation,
// across random record sets and probe accuracies.
func TestBatchSolverMatchesSlowSimulation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 5 + rng.Intn(40)
		records := make([]RksRecord, n)
		for i := range records {
			acc := 70 + rng.Float64()*30
			constant := 1 + rng.Float64()*17
			records[i] = RksRecord{
				SongID:        songID(i),
				Difficulty:    catalog.IN,
				Acc:           acc,
				ChartConstant: constant,
				RKS:           CalculateChartRKS(acc, constant),
			}
		}
		sorted := SortDescendingByRKS(records)

		solver := NewPushAccBatchSolver(sorted)
		targetIdx := rng.Intn(n)
		constant := sorted[targetIdx].ChartConstant

		for _, probe := range []float64{sorted[targetIdx].Acc, 85, 99.5, 100} {
			fast := solver.simulate(targetIdx, sorted[targetIdx], constant, probe)
			slow := slowSimulate(targetIdx, probe, constant, sorted)
			assert.InDelta(t, slow, fast, 1e-9, "trial=%d probe=%v", trial, probe)
		}
	}
}

func songID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)]) + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func indexOf(records []RksRecord, songID string) int {
	for i, r := range records {
		if r.SongID == songID {
			return i
		}
	}
	return -1
}

func TestSortDescendingByRKS(t *testing.T) {
	records := []RksRecord{
		{SongID: "a", RKS: 5},
		{SongID: "b", RKS: 10},
		{SongID: "c", RKS: 1},
	}
	sorted := SortDescendingByRKS(records)
	assert.True(t, sort.SliceIsSorted(sorted, func(i, j int) bool { return sorted[i].RKS > sorted[j].RKS }))
	assert.Equal(t, "b", sorted[0].SongID)
}

func TestSplitChartID(t *testing.T) {
	songID, diff, ok := SplitChartID("Rrhar'il-AT")
	require.True(t, ok)
	assert.Equal(t, "Rrhar'il", songID)
	assert.Equal(t, catalog.AT, diff)

	_, _, ok = SplitChartID("noseparator")
	assert.False(t, ok)
}

// SPDX-License-Identifier: MIT

package rks

import "math"

// PushAccKind distinguishes the shapes a push-ACC result can take.
type PushAccKind int8

const (
	// KindTargetAcc means raising this chart's accuracy to Acc meets the
	// next displayed-RKS threshold.
	KindTargetAcc PushAccKind = iota
	// KindPhiOnly means the threshold is reachable, but only at 100.000%.
	KindPhiOnly
	// KindUnreachable means even 100.000% does not meet the threshold.
	KindUnreachable
	// KindAlreadyPhi means the chart is already at (or above) 100%.
	KindAlreadyPhi
)

// PushAccHint is the tagged-union push-ACC result for one chart. It
// round-trips on the wire as {"type": "<kind>", "acc": ...} (see
// MarshalJSON/UnmarshalJSON), matching the legacy single-float field this
// supersedes.
type PushAccHint struct {
	Kind PushAccKind
	Acc  float64 // only meaningful when Kind == KindTargetAcc
}

// TargetAcc builds a KindTargetAcc hint.
func TargetAcc(acc float64) PushAccHint { return PushAccHint{Kind: KindTargetAcc, Acc: acc} }

// PhiOnlyHint is the PhiOnly singleton hint.
var PhiOnlyHint = PushAccHint{Kind: KindPhiOnly}

// UnreachableHint is the Unreachable singleton hint.
var UnreachableHint = PushAccHint{Kind: KindUnreachable}

// AlreadyPhiHint is the AlreadyPhi singleton hint.
var AlreadyPhiHint = PushAccHint{Kind: KindAlreadyPhi}

// TargetAccValue returns the specific target accuracy when the hint carries
// one.
func (h PushAccHint) TargetAccValue() (float64, bool) {
	if h.Kind == KindTargetAcc {
		return h.Acc, true
	}
	return 0, false
}

// AsLegacyAcc collapses the tagged union to the single float the pre-hint
// API shape used: a specific target, or 100.0 for every other case. This is
// not semantically equivalent to TargetAcc{100.0} and exists only for one
// deprecation window (spec §9: keep both fields until clients migrate).
func (h PushAccHint) AsLegacyAcc() float64 {
	if h.Kind == KindTargetAcc {
		return h.Acc
	}
	return 100.0
}

func (k PushAccKind) String() string {
	switch k {
	case KindTargetAcc:
		return "target_acc"
	case KindPhiOnly:
		return "phi_only"
	case KindUnreachable:
		return "unreachable"
	case KindAlreadyPhi:
		return "already_phi"
	default:
		return "unknown"
	}
}

// targetRksThresholdFromExact computes the exact total_rks value that, once
// rounded to two decimals for display, is 0.01 higher than current. Whether
// the bump lands on .xx5 or .xx15 depends on the third decimal digit of the
// current exact value, matching how two-decimal rounding behaves at the
// boundary.
func targetRksThresholdFromExact(currentExact float64) float64 {
	thirdDecimalGE5 := math.Mod(currentExact*1000, 10) >= 5
	floor2 := math.Floor(currentExact*100) / 100
	if thirdDecimalGE5 {
		return floor2 + 0.015
	}
	return floor2 + 0.005
}

// PushAccBatchSolver precomputes the Best27/AP3 base sums shared across
// every chart in one player's record set, then answers each chart's
// push-ACC in O(log 100000) probes instead of a full resort per chart.
// records must be pre-sorted descending by RKS.
type PushAccBatchSolver struct {
	records []RksRecord

	targetRksThreshold float64

	totalRksSum float64
	sumFirst27  float64
	sumFirst28  float64
	rks27th     float64
	rks28th     float64

	apRks       []float64
	apSum3      float64
	apSum4      float64
	apRankByIdx []int // -1 when the record at that index is not an AP record
}

// NewPushAccBatchSolver precomputes every shared sum once for records,
// which must already be sorted descending by RKS.
func NewPushAccBatchSolver(records []RksRecord) *PushAccBatchSolver {
	currentExact := exactTotalRKS(records)
	threshold := targetRksThresholdFromExact(currentExact)

	var totalSum, sum27, sum28 float64
	for i, r := range records {
		totalSum += r.RKS
		if i < 27 {
			sum27 += r.RKS
		}
		if i < 28 {
			sum28 += r.RKS
		}
	}
	rks27th := 0.0
	if len(records) > 26 {
		rks27th = records[26].RKS
	}
	rks28th := 0.0
	if len(records) > 27 {
		rks28th = records[27].RKS
	}

	apRks := make([]float64, 0, len(records))
	apRankByIdx := make([]int, len(records))
	for i, r := range records {
		if r.Acc >= 100.0 {
			apRankByIdx[i] = len(apRks)
			apRks = append(apRks, r.RKS)
		} else {
			apRankByIdx[i] = -1
		}
	}
	var apSum3, apSum4 float64
	for i, v := range apRks {
		if i < 3 {
			apSum3 += v
		}
		if i < 4 {
			apSum4 += v
		}
	}

	return &PushAccBatchSolver{
		records:            records,
		targetRksThreshold: threshold,
		totalRksSum:        totalSum,
		sumFirst27:         sum27,
		sumFirst28:         sum28,
		rks27th:            rks27th,
		rks28th:            rks28th,
		apRks:              apRks,
		apSum3:             apSum3,
		apSum4:             apSum4,
		apRankByIdx:        apRankByIdx,
	}
}

func exactTotalRKS(records []RksRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var b27 float64
	for i := 0; i < len(records) && i < 27; i++ {
		b27 += records[i].RKS
	}
	var ap3 float64
	apSeen := 0
	for _, r := range records {
		if r.Acc >= 100.0 {
			if apSeen < 3 {
				ap3 += r.RKS
				apSeen++
			} else {
				break
			}
		}
	}
	return (b27 + ap3) / totalDivisor
}

// simulate computes total_rks as if the chart at targetIndex (whose current
// value is target) instead scored testAcc, reusing the precomputed
// Best27/AP3 base sums instead of resorting the whole record set.
func (s *PushAccBatchSolver) simulate(targetIndex int, target RksRecord, targetChartConstant, testAcc float64) float64 {
	simulatedChartRKS := CalculateChartRKS(testAcc, targetChartConstant)
	n := len(s.records)
	targetRKS := target.RKS

	var b27SumExcl, b27MinExcl float64
	var b27CountExcl int
	var haveB27Min bool
	switch {
	case n <= 27:
		b27SumExcl = s.totalRksSum - targetRKS
		b27CountExcl = n - 1
		haveB27Min = false
	case targetIndex < 27:
		b27SumExcl = s.sumFirst28 - targetRKS
		b27CountExcl = 27
		b27MinExcl = s.rks28th
		haveB27Min = true
	default:
		b27SumExcl = s.sumFirst27
		b27CountExcl = 27
		b27MinExcl = s.rks27th
		haveB27Min = true
	}

	var b27SumNew float64
	switch {
	case b27CountExcl < 27:
		b27SumNew = b27SumExcl + simulatedChartRKS
	case haveB27Min && simulatedChartRKS > b27MinExcl:
		b27SumNew = b27SumExcl - b27MinExcl + simulatedChartRKS
	default:
		b27SumNew = b27SumExcl
	}

	apCount := len(s.apRks)
	targetIsAP := target.Acc >= 100.0

	var apSumExcl, apMinExcl float64
	var apCountExcl int
	var haveApMin bool
	switch {
	case apCount == 0:
		apSumExcl, apCountExcl, haveApMin = 0, 0, false
	case !targetIsAP:
		cnt := apCount
		if cnt > 3 {
			cnt = 3
		}
		apSumExcl = s.apSum3
		apCountExcl = cnt
		if cnt == 3 {
			apMinExcl = s.apRks[2]
			haveApMin = true
		}
	default:
		rank := s.apRankByIdx[targetIndex]
		if rank < 0 {
			// records backing apRankByIdx always agree with apRks; this
			// branch is unreachable in practice.
			return (b27SumNew + s.apSum3) / totalDivisor
		}
		switch {
		case apCount <= 3:
			apSumExcl = s.apSum3 - targetRKS
			apCountExcl = apCount - 1
			haveApMin = false
		case rank < 3:
			apSumExcl = s.apSum4 - targetRKS
			apCountExcl = 3
			apMinExcl = s.apRks[3]
			haveApMin = true
		default:
			apSumExcl = s.apSum3
			apCountExcl = 3
			apMinExcl = s.apRks[2]
			haveApMin = true
		}
	}

	var apSumNew float64
	switch {
	case testAcc < 100.0:
		apSumNew = apSumExcl
	case apCountExcl < 3:
		apSumNew = apSumExcl + simulatedChartRKS
	case haveApMin && simulatedChartRKS > apMinExcl:
		apSumNew = apSumExcl - apMinExcl + simulatedChartRKS
	default:
		apSumNew = apSumExcl
	}

	return (b27SumNew + apSumNew) / totalDivisor
}

// SolveForIndex computes the push-ACC hint for the chart at targetIndex,
// using targetChartConstant as its difficulty constant. Returns nil when
// the hint is not meaningful (out-of-range index, non-positive constant, or
// a chart already at 100% accuracy) — callers decide what to display.
func (s *PushAccBatchSolver) SolveForIndex(targetIndex int, targetChartConstant float64) *PushAccHint {
	if targetIndex < 0 || targetIndex >= len(s.records) {
		return nil
	}
	if len(s.records) == 0 {
		return nil
	}
	target := s.records[targetIndex]
	if targetChartConstant <= 0 || target.Acc >= 100.0 {
		return nil
	}

	simulate := func(testAcc float64) float64 {
		return s.simulate(targetIndex, target, targetChartConstant, testAcc)
	}

	if simulate(100.0) < s.targetRksThreshold {
		hint := UnreachableHint
		return &hint
	}

	loI := int64(math.Ceil(target.Acc * 1000))
	if loI < 0 {
		loI = 0
	}
	const hiI = int64(100_000)
	if loI > hiI {
		loI = hiI
	}

	meets := func(accThousandths int64) bool {
		acc := float64(accThousandths) / 1000
		return simulate(acc) >= s.targetRksThreshold
	}

	lo, hi := loI, hiI
	for lo < hi {
		mid := lo + (hi-lo)/2
		if meets(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	if lo >= 100_000 {
		hint := PhiOnlyHint
		return &hint
	}
	hint := TargetAcc(float64(lo) / 1000)
	return &hint
}

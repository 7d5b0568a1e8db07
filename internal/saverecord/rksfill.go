// SPDX-License-Identifier: MIT

package saverecord

import (
	"sort"

	"github.com/phicloud/phi-backend/internal/rks"
)

// FillRKS sets each record's PushAcc and PushAccHint in place and returns
// the player's aggregated total. Records without a usable chart constant
// contribute nothing to the total and get the Unreachable hint with the
// legacy PushAcc of 100.
func FillRKS(gr GameRecord) rks.PlayerRKSResult {
	flat := flatten(gr)
	sorted := rks.SortDescendingByRKS(flat)
	hints := rks.CalculateAllPushHints(sorted)

	for songID, diffs := range gr {
		for i := range diffs {
			rec := &diffs[i]
			chartID := songID + "-" + rec.Difficulty.String()

			if rec.ChartConstant == nil || *rec.ChartConstant <= 0 {
				unreachable := rks.UnreachableHint
				legacy := 100.0
				rec.PushAcc = &legacy
				rec.PushAccHint = &unreachable
				continue
			}

			accPercent := normalizedAccPercent(rec.Accuracy)
			if accPercent >= 100.0 {
				already := rks.AlreadyPhiHint
				legacy := 100.0
				rec.PushAcc = &legacy
				rec.PushAccHint = &already
				continue
			}

			hint, ok := hints[chartID]
			if !ok {
				hint = rks.UnreachableHint
			}
			legacy := hint.AsLegacyAcc()
			rec.PushAcc = &legacy
			rec.PushAccHint = &hint
		}
	}

	return rks.CalculatePlayerRKS(flat)
}

func flatten(gr GameRecord) []rks.RksRecord {
	songIDs := make([]string, 0, len(gr))
	for songID := range gr {
		songIDs = append(songIDs, songID)
	}
	sort.Strings(songIDs)

	out := make([]rks.RksRecord, 0, len(gr)*2)
	for _, songID := range songIDs {
		for _, rec := range gr[songID] {
			if rec.ChartConstant == nil {
				continue
			}
			constant := *rec.ChartConstant
			accPercent := normalizedAccPercent(rec.Accuracy)
			out = append(out, rks.RksRecord{
				SongID:        songID,
				Difficulty:    rec.Difficulty,
				Score:         int64(rec.Score),
				Acc:           accPercent,
				ChartConstant: constant,
				RKS:           rks.CalculateChartRKS(accPercent, constant),
				IsFullCombo:   rec.IsFullCombo,
			})
		}
	}
	return out
}

func normalizedAccPercent(acc float32) float64 {
	return rks.NormalizeAccuracy(float64(acc)) * 100
}

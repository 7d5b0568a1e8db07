// SPDX-License-Identifier: MIT

// Package saverecord parses Phigros gameRecord data, both the JSON shape
// (score/accuracy/fc triples per difficulty) and the bespoke binary layout
// stored inside the decrypted save archive, into a uniform DifficultyRecord
// model ready for RKS scoring.
package saverecord

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/phicloud/phi-backend/internal/catalog"
	"github.com/phicloud/phi-backend/internal/rks"
)

// DifficultyRecord is one chart's recorded performance. Accuracy may be
// stored as a 0-1 decimal or a 0-100 percentage by different save
// producers and must be normalized (rks.NormalizeAccuracy) before scoring.
type DifficultyRecord struct {
	Difficulty    catalog.Difficulty
	Score         uint32
	Accuracy      float32
	IsFullCombo   bool
	ChartConstant *float64
	PushAcc       *float64
	PushAccHint   *rks.PushAccHint
}

// GameRecord maps song_id to its recorded difficulty plays (at most 4,
// EZ..AT, only entries with a score present).
type GameRecord map[string][]DifficultyRecord

// ParseGameRecordJSON parses the gameRecord JSON shape:
// {"song_id": [score, accuracy, fc, score, accuracy, fc, ...], ...},
// where each consecutive (score, accuracy, fc) triple is one difficulty in
// EZ, HD, IN, AT order. Entries with a non-positive score are skipped.
func ParseGameRecordJSON(raw map[string][]float64, chartConstants *catalog.Catalog) (GameRecord, error) {
	result := make(GameRecord, len(raw))

	for songID, scores := range raw {
		records := make([]DifficultyRecord, 0, 4)
		songConstants, _ := chartConstants.Song(songID)

		for idx := 0; idx*3+2 < len(scores); idx++ {
			chunk := scores[idx*3 : idx*3+3]

			scoreF := chunk[0]
			if scoreF <= 0 {
				continue
			}
			if scoreF > math.MaxUint32 {
				return nil, fmt.Errorf("saverecord: score overflow at %q[%d]", songID, idx)
			}

			diff, err := difficultyFromIndex(idx)
			if err != nil {
				return nil, fmt.Errorf("saverecord: %s[%d]: %w", songID, idx, err)
			}

			var constantPtr *float64
			if c, ok := songConstants.For(diff); ok {
				constantPtr = &c
			}

			records = append(records, DifficultyRecord{
				Difficulty:    diff,
				Score:         uint32(scoreF),
				Accuracy:      float32(chunk[1]),
				IsFullCombo:   chunk[2] != 0,
				ChartConstant: constantPtr,
			})
		}

		result[songID] = records
	}

	return result, nil
}

func difficultyFromIndex(idx int) (catalog.Difficulty, error) {
	switch idx {
	case 0:
		return catalog.EZ, nil
	case 1:
		return catalog.HD, nil
	case 2:
		return catalog.IN, nil
	case 3:
		return catalog.AT, nil
	default:
		return 0, fmt.Errorf("invalid difficulty index %d", idx)
	}
}

// binReader walks the bespoke binary gameRecord entry format: a length
// varshort, then one record per song: a length-prefixed string key
// (trimmed by a fixed suffix byte count), a payload-length byte, a
// presence/FC bitmask pair, then
// little-endian int32 score + float32 accuracy per set bit.
type binReader struct {
	data []byte
	off  int
}

func (r *binReader) remain() int { return len(r.data) - r.off }

func (r *binReader) readU8() (byte, error) {
	if r.remain() < 1 {
		return 0, fmt.Errorf("saverecord: EOF reading u8")
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *binReader) readI32LE() (int32, error) {
	if r.remain() < 4 {
		return 0, fmt.Errorf("saverecord: EOF reading i32")
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off : r.off+4]))
	r.off += 4
	return v, nil
}

func (r *binReader) readF32LE() (float32, error) {
	if r.remain() < 4 {
		return 0, fmt.Errorf("saverecord: EOF reading f32")
	}
	bits := binary.LittleEndian.Uint32(r.data[r.off : r.off+4])
	r.off += 4
	return math.Float32frombits(bits), nil
}

// readVarshort decodes a 1-or-2-byte length: values < 0x80 are a single
// byte; otherwise a second byte supplies bits 7-14.
func (r *binReader) readVarshort() (int, error) {
	b0, err := r.readU8()
	if err != nil {
		return 0, err
	}
	if b0 < 0x80 {
		return int(b0), nil
	}
	b1, err := r.readU8()
	if err != nil {
		return 0, err
	}
	return (int(b0)&0x7F | int(b1)<<7) & 0xFFFF, nil
}

// readStringTrimEnd reads a varshort-prefixed byte string and drops the
// last trim bytes (the format pads keys with trailing marker bytes).
func (r *binReader) readStringTrimEnd(trim int) (string, error) {
	length, err := r.readVarshort()
	if err != nil {
		return "", err
	}
	if length < trim {
		return "", fmt.Errorf("saverecord: invalid string length %d (trim %d)", length, trim)
	}
	if r.remain() < length {
		return "", fmt.Errorf("saverecord: EOF reading string bytes")
	}
	keepLen := length - trim
	s := string(r.data[r.off : r.off+keepLen])
	r.off += length
	return s, nil
}

// ParseGameRecordBytes parses the gameRecord entry directly from its
// decrypted binary form, skipping the intermediate JSON representation.
// entry must include its leading format-version prefix byte.
func ParseGameRecordBytes(entry []byte, chartConstants *catalog.Catalog) (GameRecord, error) {
	if len(entry) == 0 {
		return nil, fmt.Errorf("saverecord: gameRecord entry is empty")
	}

	r := &binReader{data: entry[1:]}
	count, err := r.readVarshort()
	if err != nil {
		return nil, err
	}

	result := make(GameRecord, count)

	for i := 0; i < count; i++ {
		songID, err := r.readStringTrimEnd(2)
		if err != nil {
			return nil, fmt.Errorf("saverecord: record %d: %w", i, err)
		}

		start := r.off
		firstLen, err := r.readU8()
		if err != nil {
			return nil, err
		}
		next := start + 1 + int(firstLen)
		if next > len(r.data) {
			return nil, fmt.Errorf("saverecord: gameRecord entry out of bounds for %q", songID)
		}

		mask, err := r.readU8()
		if err != nil {
			return nil, err
		}
		fcMask, err := r.readU8()
		if err != nil {
			return nil, err
		}

		records := make([]DifficultyRecord, 0, 4)
		songConstants, _ := chartConstants.Song(songID)

		for idx := 0; idx < 4; idx++ {
			if (mask>>uint(idx))&1 == 0 {
				continue
			}

			scoreI32, err := r.readI32LE()
			if err != nil {
				return nil, err
			}
			acc, err := r.readF32LE()
			if err != nil {
				return nil, err
			}
			if scoreI32 <= 0 {
				continue
			}
			if !isFiniteF32(acc) {
				acc = 0
			}

			isFullCombo := (fcMask>>uint(idx))&1 != 0
			diff, err := difficultyFromIndex(idx)
			if err != nil {
				return nil, fmt.Errorf("saverecord: %q: %w", songID, err)
			}

			var constantPtr *float64
			if c, ok := songConstants.For(diff); ok {
				constantPtr = &c
			}

			records = append(records, DifficultyRecord{
				Difficulty:    diff,
				Score:         uint32(scoreI32),
				Accuracy:      acc,
				IsFullCombo:   isFullCombo,
				ChartConstant: constantPtr,
			})
		}

		r.off = next
		result[songID] = records
	}

	return result, nil
}

func isFiniteF32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

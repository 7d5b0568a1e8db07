// SPDX-License-Identifier: MIT

package rks

import (
	"encoding/json"
	"fmt"
)

type wireHint struct {
	Type string   `json:"type"`
	Acc  *float64 `json:"acc,omitempty"`
}

// MarshalJSON encodes the hint as {"type": "<kind>", "acc": ...}, matching
// the tagged-union shape clients already consume.
func (h PushAccHint) MarshalJSON() ([]byte, error) {
	w := wireHint{Type: h.Kind.String()}
	if h.Kind == KindTargetAcc {
		acc := h.Acc
		w.Acc = &acc
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged-union shape produced by MarshalJSON.
func (h *PushAccHint) UnmarshalJSON(data []byte) error {
	var w wireHint
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "target_acc":
		if w.Acc == nil {
			return fmt.Errorf("rks: target_acc hint missing acc field")
		}
		*h = TargetAcc(*w.Acc)
	case "phi_only":
		*h = PhiOnlyHint
	case "unreachable":
		*h = UnreachableHint
	case "already_phi":
		*h = AlreadyPhiHint
	default:
		return fmt.Errorf("rks: unknown push_acc_hint type %q", w.Type)
	}
	return nil
}

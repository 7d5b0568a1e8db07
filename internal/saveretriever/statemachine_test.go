// SPDX-License-Identifier: MIT

package saveretriever

import (
	"testing"
	"time"
)

func TestStore_PendingThenConfirmedIsSingleShot(t *testing.T) {
	s := NewStore()
	s.SetPending("qr-1", "dc-1", "device-1", "cn", 5)

	entry := s.Get("qr-1")
	if entry == nil || entry.status != StatusPending {
		t.Fatalf("expected pending entry, got %+v", entry)
	}

	s.SetConfirmed("qr-1", SessionData{SessionToken: "tok"})
	entry = s.Get("qr-1")
	if entry == nil || entry.status != StatusConfirmed || entry.session.SessionToken != "tok" {
		t.Fatalf("expected confirmed entry with token, got %+v", entry)
	}

	s.Remove("qr-1")
	if s.Get("qr-1") != nil {
		t.Fatal("expected entry removed after single-shot read")
	}
}

func TestStore_UnknownIDIsExpired(t *testing.T) {
	s := NewStore()
	if s.Get("missing") != nil {
		t.Fatal("expected nil for unknown qr id")
	}
}

func TestStore_SetPendingNextPollAdvancesInterval(t *testing.T) {
	s := NewStore()
	s.SetPending("qr-2", "dc-2", "device-2", "cn", 5)
	entry := s.Get("qr-2")

	before := entry.nextPollAt
	s.SetPendingNextPoll("qr-2", entry)

	after := s.Get("qr-2")
	if !after.nextPollAt.After(before) {
		t.Fatalf("expected nextPollAt to advance, before=%v after=%v", before, after.nextPollAt)
	}
	if after.nextPollAt.Before(time.Now()) {
		t.Fatal("expected nextPollAt to be in the future")
	}
}

// SPDX-License-Identifier: MIT

package saveretriever

import (
	"time"

	"github.com/phicloud/phi-backend/internal/cache"
)

// Status is the device-code polling state as exposed to the client.
type Status int

const (
	StatusPending Status = iota
	StatusScanned
	StatusConfirmed
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusScanned:
		return "Scanned"
	case StatusConfirmed:
		return "Confirmed"
	default:
		return "Expired"
	}
}

// qrEntry is the value stored per qr_id while a login is in flight.
type qrEntry struct {
	status      Status
	deviceCode  string
	deviceID    string
	version     string
	intervalSec int64
	nextPollAt  time.Time
	session     SessionData
}

// qrTTL bounds how long an unconfirmed device code stays pollable; TapTap
// device codes themselves typically expire well within this window.
const qrTTL = 10 * time.Minute

// Store tracks in-flight device-code logins keyed by an opaque qr_id the
// client polls. Entries are single-shot: a Confirmed read removes them.
type Store struct {
	cache cache.Cache
}

// NewStore builds a Store backed by an in-memory TTL cache, matching the
// janitor-cleaned cache used elsewhere for short-lived process state.
func NewStore() *Store {
	return &Store{cache: cache.NewMemoryCache(time.Minute)}
}

// SetPending records a freshly requested device code as Pending, eligible
// for its first poll immediately.
func (s *Store) SetPending(qrID, deviceCode, deviceID, version string, intervalSec int64) {
	s.cache.Set(qrID, &qrEntry{
		status:      StatusPending,
		deviceCode:  deviceCode,
		deviceID:    deviceID,
		version:     version,
		intervalSec: intervalSec,
		nextPollAt:  time.Now(),
	}, qrTTL)
}

// SetPendingNextPoll advances the next allowed poll time after an
// authorization_pending response, per TapTap's suggested interval.
func (s *Store) SetPendingNextPoll(qrID string, e *qrEntry) {
	e.status = StatusPending
	e.nextPollAt = time.Now().Add(time.Duration(e.intervalSec) * time.Second)
	s.cache.Set(qrID, e, qrTTL)
}

// SetConfirmed marks a login as confirmed so the next Get can hand back
// the session token exactly once.
func (s *Store) SetConfirmed(qrID string, session SessionData) {
	s.cache.Set(qrID, &qrEntry{status: StatusConfirmed, session: session}, qrTTL)
}

// Get returns the current entry, or nil if expired/unknown.
func (s *Store) Get(qrID string) *qrEntry {
	v, ok := s.cache.Get(qrID)
	if !ok {
		return nil
	}
	e, _ := v.(*qrEntry)
	return e
}

// Remove deletes an entry, used once a Confirmed status has been read.
func (s *Store) Remove(qrID string) {
	s.cache.Delete(qrID)
}

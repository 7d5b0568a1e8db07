// SPDX-License-Identifier: MIT

package saveretriever

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/phicloud/phi-backend/internal/catalog"
	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/saverecord"
)

// Service is the QR/device-code login facade consumed by HTTP handlers:
// it owns the TapTap client, the in-flight login store, the metadata
// fetcher, and the archive downloader.
type Service struct {
	tapTap     *TapTapClient
	store      *Store
	meta       *MetaFetcher
	downloader *Downloader
}

// NewService wires the Save Retriever from process configuration.
func NewService(cfg config.SaveConfig) *Service {
	return &Service{
		tapTap:     NewTapTapClient(cfg.TapTap),
		store:      NewStore(),
		meta:       NewMetaFetcher(cfg),
		downloader: NewDownloader(cfg.MaxDownloadBytes),
	}
}

// QRLogin is what a freshly created device-code login returns to the
// client: a scannable code plus the opaque id used to poll for
// confirmation.
type QRLogin struct {
	QRID            string
	VerificationURL string
	QRCodeDataURI   string
}

// StartQRLogin requests a TapTap device code, renders its verification
// URL as a PNG QR code, and records the login as Pending.
func (s *Service) StartQRLogin(ctx context.Context, version string) (QRLogin, error) {
	deviceID := uuid.NewString()
	qrID := uuid.NewString()

	device, err := s.tapTap.RequestDeviceCode(ctx, deviceID, version)
	if err != nil {
		return QRLogin{}, err
	}
	if device.DeviceCode == "" || device.VerificationURL == "" {
		return QRLogin{}, newErr(KindMissingField, "taptap did not return device_code/verification_url", nil)
	}

	png, err := qrcode.Encode(device.VerificationURL, qrcode.Medium, 256)
	if err != nil {
		return QRLogin{}, newErr(KindNetwork, "render qr code", err)
	}
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	interval := device.Interval
	if interval <= 0 {
		interval = 5
	}
	s.store.SetPending(qrID, device.DeviceCode, deviceID, version, interval)

	return QRLogin{QRID: qrID, VerificationURL: device.VerificationURL, QRCodeDataURI: dataURI}, nil
}

// QRStatusResult is the status response handed back to the polling
// client, mirroring the four-state machine from spec §4.1.
type QRStatusResult struct {
	Status       Status
	SessionToken string
	Message      string
	RetryAfter   int64
}

// PollQRStatus advances the device-code state machine at most once per
// call, never faster than the upstream-advised interval.
func (s *Service) PollQRStatus(ctx context.Context, qrID string) QRStatusResult {
	entry := s.store.Get(qrID)
	if entry == nil {
		return QRStatusResult{Status: StatusExpired, Message: "qr code not found or expired"}
	}

	switch entry.status {
	case StatusConfirmed:
		s.store.Remove(qrID)
		return QRStatusResult{Status: StatusConfirmed, SessionToken: entry.session.SessionToken}

	case StatusScanned:
		return QRStatusResult{Status: StatusScanned}

	default: // StatusPending
		if time.Now().Before(entry.nextPollAt) {
			return QRStatusResult{Status: StatusPending, RetryAfter: int64(time.Until(entry.nextPollAt).Seconds())}
		}

		session, err := s.tapTap.PollForToken(ctx, entry.deviceCode, entry.deviceID, entry.version)
		switch {
		case err == nil:
			s.store.SetConfirmed(qrID, session)
			s.store.Remove(qrID)
			return QRStatusResult{Status: StatusConfirmed, SessionToken: session.SessionToken}
		case IsAuthPending(err):
			s.store.SetPendingNextPoll(qrID, entry)
			return QRStatusResult{Status: StatusPending, RetryAfter: entry.intervalSec}
		default:
			s.store.Remove(qrID)
			return QRStatusResult{Status: StatusExpired, Message: err.Error()}
		}
	}
}

// FetchSaveMeta resolves download URL and crypto parameters without
// downloading the save body (cache-check fast path).
func (s *Service) FetchSaveMeta(ctx context.Context, source SaveSource, version string) (SaveMeta, error) {
	return s.meta.FetchSaveMeta(ctx, source, version)
}

// FetchParsedSave runs the full pipeline: metadata lookup, download,
// decompress, per-entry decrypt, and gameRecord parsing — handing off to
// internal/saverecord (C5) for the binary record layout. RKS and push-ACC
// fields are not filled here.
func (s *Service) FetchParsedSave(ctx context.Context, source SaveSource, version string, charts *catalog.Catalog) (saverecord.GameRecord, SaveMeta, error) {
	meta, err := s.meta.FetchSaveMeta(ctx, source, version)
	if err != nil {
		return nil, SaveMeta{}, err
	}

	entries, err := s.downloader.Fetch(ctx, meta)
	if err != nil {
		return nil, meta, err
	}

	raw, ok := entries["gameRecord"]
	if !ok {
		return saverecord.GameRecord{}, meta, nil
	}

	gr, err := saverecord.ParseGameRecordBytes(raw, charts)
	if err != nil {
		return nil, meta, newErr(KindJSON, "parse gameRecord", err)
	}
	return gr, meta, nil
}

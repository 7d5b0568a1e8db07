// SPDX-License-Identifier: MIT

package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

const (
	minAliasLen = 2
	maxAliasLen = 20
)

// ValidateAlias checks length and character-set constraints (reserved-word
// and duplicate checks are storage's job, since they require a DB round
// trip). Allowed characters are ASCII alphanumerics plus ". _ -".
func ValidateAlias(alias string) error {
	if len(alias) < minAliasLen || len(alias) > maxAliasLen {
		return fmt.Errorf("leaderboard: alias length must be between %d and %d", minAliasLen, maxAliasLen)
	}
	for _, r := range alias {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("leaderboard: alias may only contain letters, digits, and . _ -")
		}
	}
	return nil
}

// SetAlias validates and assigns alias to userHash, idempotently. The
// trimmed form of alias is what gets validated and stored.
func SetAlias(ctx context.Context, store *storage.Storage, userHash, alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if err := ValidateAlias(alias); err != nil {
		return "", err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := store.SetAlias(ctx, userHash, alias, now); err != nil {
		return "", err
	}
	return alias, nil
}

// ProfileUpdate carries the optional visibility toggles a profile PUT may
// change; nil fields leave the stored value untouched.
type ProfileUpdate struct {
	IsPublic           *bool
	ShowRKSComposition *bool
	ShowBestTop3       *bool
	ShowAPTop3         *bool
}

// UpdateProfile applies a partial visibility update, rejecting an attempt
// to go public when the deployment has public profiles disabled.
func UpdateProfile(ctx context.Context, store *storage.Storage, cfg config.LeaderboardConfig, userHash string, upd ProfileUpdate) error {
	if upd.IsPublic != nil && *upd.IsPublic && !cfg.AllowPublic {
		return fmt.Errorf("leaderboard: public profiles are disabled on this deployment")
	}

	existing, _, err := store.GetProfile(ctx, userHash)
	if err != nil {
		return fmt.Errorf("leaderboard: load profile: %w", err)
	}

	isPublic := existing.IsPublic
	showRC := existing.ShowRKSComposition
	showB3 := existing.ShowBestTop3
	showAP3 := existing.ShowAPTop3
	if upd.IsPublic != nil {
		isPublic = *upd.IsPublic
	}
	if upd.ShowRKSComposition != nil {
		showRC = *upd.ShowRKSComposition
	}
	if upd.ShowBestTop3 != nil {
		showB3 = *upd.ShowBestTop3
	}
	if upd.ShowAPTop3 != nil {
		showAP3 = *upd.ShowAPTop3
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	return store.SetVisibility(ctx, userHash, isPublic, showRC, showB3, showAP3, now)
}

// DefaultVisibility builds the ShowRKSComposition/ShowBestTop3/ShowAPTop3
// defaults a brand-new alias assignment should start with, per deployment
// config.
func DefaultVisibility(cfg config.LeaderboardConfig) (showRKS, showBest3, showAP3 bool) {
	return cfg.DefaultShowRKS, cfg.DefaultShowBest3, cfg.DefaultShowAP3
}

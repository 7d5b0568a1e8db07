// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrAliasTaken is returned by SetAlias when the alias is already in use by
// a different user_hash (unique, case-insensitive).
var ErrAliasTaken = errors.New("storage: alias already taken")

// ErrAliasReserved is returned by SetAlias for reserved words.
var ErrAliasReserved = errors.New("storage: alias is reserved")

var reservedAliases = map[string]bool{
	"admin": true, "system": true, "null": true, "undefined": true, "root": true,
}

// UserProfile is a player's public-facing leaderboard identity and privacy
// settings.
type UserProfile struct {
	UserHash           string
	Alias              *string
	IsPublic           bool
	IsHidden           bool
	ModerationStatus   string
	ShowRKSComposition bool
	ShowBestTop3       bool
	ShowAPTop3         bool
	UserKind           *string
	CreatedAt          string
	UpdatedAt          string
}

// GetProfile returns a user's profile row, ok=false if none exists yet.
func (s *Storage) GetProfile(ctx context.Context, userHash string) (UserProfile, bool, error) {
	var p UserProfile
	row := s.DB.QueryRowContext(ctx,
		`SELECT user_hash, alias, is_public, is_hidden, moderation_status,
		        show_rks_composition, show_best_top3, show_ap_top3, user_kind, created_at, updated_at
		 FROM user_profile WHERE user_hash = ?`, userHash)
	err := row.Scan(&p.UserHash, &p.Alias, &p.IsPublic, &p.IsHidden, &p.ModerationStatus,
		&p.ShowRKSComposition, &p.ShowBestTop3, &p.ShowAPTop3, &p.UserKind, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return UserProfile{}, false, nil
	}
	return p, err == nil, err
}

// SetAlias assigns a display alias to a user, upserting the profile row.
// Reserved words and duplicates (case-insensitive) are rejected.
func (s *Storage) SetAlias(ctx context.Context, userHash, alias, nowRFC3339 string) error {
	if reservedAliases[strings.ToLower(alias)] {
		return ErrAliasReserved
	}

	var existing string
	err := s.DB.QueryRowContext(ctx,
		`SELECT user_hash FROM user_profile WHERE alias = ? COLLATE NOCASE AND user_hash != ?`,
		alias, userHash,
	).Scan(&existing)
	if err == nil {
		return ErrAliasTaken
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO user_profile(user_hash, alias, created_at, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_hash) DO UPDATE SET alias = excluded.alias, updated_at = excluded.updated_at`,
		userHash, alias, nowRFC3339, nowRFC3339,
	)
	return err
}

// ForceSetAlias is the admin override: it clears any existing holder of the
// alias (freeing it) and assigns it to userHash in one transaction,
// bypassing the uniqueness pre-check race that SetAlias is subject to.
func (s *Storage) ForceSetAlias(ctx context.Context, userHash, alias, nowRFC3339 string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_profile SET alias = NULL, updated_at = ? WHERE alias = ? COLLATE NOCASE AND user_hash != ?`,
		nowRFC3339, alias, userHash,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_profile(user_hash, alias, created_at, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_hash) DO UPDATE SET alias = excluded.alias, updated_at = excluded.updated_at`,
		userHash, alias, nowRFC3339, nowRFC3339,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// SetVisibility updates a user's public/show-composition preferences.
func (s *Storage) SetVisibility(ctx context.Context, userHash string, isPublic, showRKS, showBest3, showAP3 bool, nowRFC3339 string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO user_profile(user_hash, is_public, show_rks_composition, show_best_top3, show_ap_top3, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(user_hash) DO UPDATE SET
		   is_public = excluded.is_public,
		   show_rks_composition = excluded.show_rks_composition,
		   show_best_top3 = excluded.show_best_top3,
		   show_ap_top3 = excluded.show_ap_top3,
		   updated_at = excluded.updated_at`,
		userHash, isPublic, showRKS, showBest3, showAP3, nowRFC3339, nowRFC3339,
	)
	return err
}

// SetModerationStatus transitions a user's moderation status and appends an
// audit row to moderation_flags. "approved" clears is_hidden; every other
// status sets it.
func (s *Storage) SetModerationStatus(ctx context.Context, userHash, status, reason, actor, nowRFC3339 string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	hidden := 0
	if status != "approved" {
		hidden = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_profile(user_hash, moderation_status, is_hidden, created_at, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(user_hash) DO UPDATE SET moderation_status = excluded.moderation_status, is_hidden = excluded.is_hidden, updated_at = excluded.updated_at`,
		userHash, status, hidden, nowRFC3339, nowRFC3339,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO moderation_flags(user_hash, status, reason, actor, created_at) VALUES(?,?,?,?,?)`,
		userHash, status, reason, actor, nowRFC3339,
	); err != nil {
		return err
	}
	return tx.Commit()
}

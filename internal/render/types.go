// SPDX-License-Identifier: MIT

// Package render composes SVG score cards and rasterizes them to PNG/JPEG.
// It mirrors the teacher's card-generation surface: a small set of typed
// inputs (player stats, per-chart scores, leaderboard entries) feed string
// templates that are then handed to an SVG rasterizer.
package render

import "time"

// ChartScore is a single chart clear used by the BestN card and the
// per-song card. Score is nil when the chart has never been cleared.
type ChartScore struct {
	SongID          string
	SongName        string
	Difficulty      string // "EZ" | "HD" | "IN" | "AT"
	Score           *float64
	Acc             float64
	RKS             float64
	DifficultyValue float64
	IsFullCombo     bool
	IsPhi           bool
	PlayerPushAcc   *float64
}

// ChallengeRank is the colored challenge-mode badge ("courseColor", "level").
type ChallengeRank struct {
	Color string
	Level string
}

// PlayerStats is the data a BestN ("B27"/"B30") summary card renders.
type PlayerStats struct {
	PlayerName       string
	UpdateTime       time.Time
	N                int
	RealRKS          float64
	Best27Avg        float64
	APTop3Avg        float64
	APTop3Scores     []ChartScore
	ChallengeRank    *ChallengeRank
	DataString       string
	CustomFooterText string
	IsUserGenerated  bool
	Charts           []ChartScore
}

// SongRenderData is the data a single-song card renders: one row per
// difficulty, keyed the same way as the upstream save data ("EZ".."AT").
type SongRenderData struct {
	SongName         string
	SongID           string
	PlayerName       string
	UpdateTime       time.Time
	DifficultyScores map[string]*ChartScore
	IllustrationPath string
	CustomFooterText string
}

// LeaderboardEntry is one ranked row on a leaderboard snapshot card.
type LeaderboardEntry struct {
	PlayerName string
	RKS        float64
}

// LeaderboardRenderData is the data a leaderboard snapshot card renders.
type LeaderboardRenderData struct {
	Title        string
	UpdateTime   time.Time
	Entries      []LeaderboardEntry
	DisplayCount int
}

// coverAspectRatio matches the teacher's cover art ratio (512x270 jacket art).
const coverAspectRatio = 512.0 / 270.0

// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phicloud/phi-backend/internal/api"
	"github.com/phicloud/phi-backend/internal/leaderboard"
	"github.com/phicloud/phi-backend/internal/session"
)

func (s *server) identityFromRequest(r *http.Request, bodyUserHash string) (string, bool) {
	state := s.sessions.DecodeBearer(r.Context(), r.Header.Get("Authorization"))
	return session.DeriveUserIdentityWithBearer(bodyUserHash, state)
}

func (s *server) handleLeaderboardTop(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseInt64(q.Get("limit"), 50)
	offset := parseInt64(q.Get("offset"), 0)

	var cursor *leaderboard.Cursor
	if q.Get("after_score") != "" && q.Get("after_updated") != "" && q.Get("after_user") != "" {
		score, err := strconv.ParseFloat(q.Get("after_score"), 64)
		if err != nil {
			api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, "after_score must be numeric")
			return
		}
		cursor = &leaderboard.Cursor{Score: score, UpdatedAt: q.Get("after_updated"), UserHash: q.Get("after_user")}
	}

	page, err := leaderboard.Top(r.Context(), s.store, limit, offset, cursor)
	if err != nil {
		api.RespondError(w, r, http.StatusInternalServerError, api.ErrInternalServer, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) handleLeaderboardByRank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := leaderboard.RankQuery{}
	if v := q.Get("rank"); v != "" {
		n := parseInt64(v, 0)
		query.Rank = &n
	}
	if v := q.Get("start"); v != "" {
		n := parseInt64(v, 0)
		query.Start = &n
	}
	if v := q.Get("end"); v != "" {
		n := parseInt64(v, 0)
		query.End = &n
	}
	if v := q.Get("count"); v != "" {
		n := parseInt64(v, 0)
		query.Count = &n
	}

	page, err := leaderboard.ByRank(r.Context(), s.store, query)
	if err != nil {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type meRequest struct {
	UserHash string `json:"user_hash,omitempty"`
}

func (s *server) handleLeaderboardMe(w http.ResponseWriter, r *http.Request) {
	var req meRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	userHash, ok := s.identityFromRequest(r, req.UserHash)
	if !ok {
		api.RespondError(w, r, http.StatusUnauthorized, api.ErrUnauthorized)
		return
	}

	rank, err := leaderboard.Me(r.Context(), s.store, userHash)
	if err != nil {
		api.RespondError(w, r, http.StatusInternalServerError, api.ErrInternalServer, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

type aliasRequest struct {
	UserHash string `json:"user_hash,omitempty"`
	Alias    string `json:"alias"`
}

func (s *server) handleLeaderboardAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, err.Error())
		return
	}
	userHash, ok := s.identityFromRequest(r, req.UserHash)
	if !ok {
		api.RespondError(w, r, http.StatusUnauthorized, api.ErrUnauthorized)
		return
	}

	alias, err := leaderboard.SetAlias(r.Context(), s.store, userHash, req.Alias)
	if err != nil {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"alias": alias})
}

type profileRequest struct {
	UserHash           string `json:"user_hash,omitempty"`
	IsPublic           *bool  `json:"is_public,omitempty"`
	ShowRKSComposition *bool  `json:"show_rks_composition,omitempty"`
	ShowBestTop3       *bool  `json:"show_best_top3,omitempty"`
	ShowAPTop3         *bool  `json:"show_ap_top3,omitempty"`
}

func (s *server) handleLeaderboardProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, err.Error())
		return
	}
	userHash, ok := s.identityFromRequest(r, req.UserHash)
	if !ok {
		api.RespondError(w, r, http.StatusUnauthorized, api.ErrUnauthorized)
		return
	}

	err := leaderboard.UpdateProfile(r.Context(), s.store, s.cfg.Leaderboard, userHash, leaderboard.ProfileUpdate{
		IsPublic:           req.IsPublic,
		ShowRKSComposition: req.ShowRKSComposition,
		ShowBestTop3:       req.ShowBestTop3,
		ShowAPTop3:         req.ShowAPTop3,
	})
	if err != nil {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLeaderboardPublicProfile(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	profile, ok, err := leaderboard.GetPublicProfile(r.Context(), s.store, alias)
	if err != nil {
		api.RespondError(w, r, http.StatusInternalServerError, api.ErrInternalServer, err.Error())
		return
	}
	if !ok {
		api.RespondError(w, r, http.StatusNotFound, api.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

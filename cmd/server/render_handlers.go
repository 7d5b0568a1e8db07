// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/phicloud/phi-backend/internal/api"
	"github.com/phicloud/phi-backend/internal/render"
)

// renderRequest is the common envelope both render routes accept: the
// already-computed data to draw plus the presentation knobs. Computing
// PlayerStats/LeaderboardRenderData from a save file is the caller's job —
// this endpoint is a pure renderer, not a save-decryption pipeline, so a
// client (or an internal job) that already resolved a save and ran the RKS
// engine hands the result straight in.
type renderRequest struct {
	Theme           string `json:"theme"`
	Format          string `json:"format"`
	EmbedImages     bool   `json:"embed_images"`
	TargetWidth     int    `json:"target_width,omitempty"`
	JPEGQuality     int    `json:"jpeg_quality,omitempty"`
	IsUserGenerated bool   `json:"is_user_generated"`
}

func parseTheme(s string) render.Theme {
	if s == "black" {
		return render.ThemeBlack
	}
	return render.ThemeWhite
}

func (s *server) cardOptions(req renderRequest) render.CardOptions {
	return render.CardOptions{
		Theme:       parseTheme(req.Theme),
		EmbedImages: req.EmbedImages,
		Assets:      s.assets,
		Colors:      s.colors,
	}
}

func (s *server) writeRendered(w http.ResponseWriter, r *http.Request, svg string, req renderRequest) {
	quality := req.JPEGQuality
	if quality <= 0 {
		quality = 85
	}
	b, mime, err := render.RenderUnified(svg, req.Format, req.IsUserGenerated, req.TargetWidth, quality)
	if err != nil {
		api.RespondError(w, r, http.StatusUnprocessableEntity, api.ErrImageRender, err.Error())
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type cardRenderRequest struct {
	renderRequest
	Stats render.PlayerStats `json:"stats"`
}

func (s *server) handleRenderCard(w http.ResponseWriter, r *http.Request) {
	var req cardRenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, err.Error())
		return
	}

	svg, err := render.GenerateCardSVG(req.Stats, s.cardOptions(req.renderRequest))
	if err != nil {
		api.RespondError(w, r, http.StatusUnprocessableEntity, api.ErrImageRender, err.Error())
		return
	}
	s.writeRendered(w, r, svg, req.renderRequest)
}

type leaderboardRenderRequest struct {
	renderRequest
	Data render.LeaderboardRenderData `json:"data"`
}

func (s *server) handleRenderLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req leaderboardRenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, err.Error())
		return
	}

	svg, err := render.GenerateLeaderboardSVG(req.Data, s.cardOptions(req.renderRequest))
	if err != nil {
		api.RespondError(w, r, http.StatusUnprocessableEntity, api.ErrImageRender, err.Error())
		return
	}
	s.writeRendered(w, r, svg, req.renderRequest)
}

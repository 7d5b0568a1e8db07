// SPDX-License-Identifier: MIT

package render

import (
	"fmt"
	"strings"
)

// cardSVGBufferHint is a starting capacity for the BestN card builder: a
// 27-entry grid runs a little over 150KB of markup, so pre-sizing avoids
// most of the builder's reallocation churn.
const cardSVGBufferHint = 200 * 1024

// Theme selects the card's background/foreground palette.
type Theme int

const (
	ThemeWhite Theme = iota
	ThemeBlack
)

func (t Theme) gradientID() string {
	if t == ThemeWhite {
		return "ap-gradient-white"
	}
	return "ap-gradient"
}

func (t Theme) panelFill() string {
	if t == ThemeWhite {
		return "rgba(247, 250, 255, 0.78)"
	}
	return "rgba(20, 24, 38, 0.7)"
}

func (t Theme) textColor() string {
	if t == ThemeWhite {
		return "#1b1f2a"
	}
	return "#f5f7ff"
}

// escapeXML escapes the five characters that would otherwise break
// well-formedness inside SVG text/attribute content.
func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

// CardOptions configures how GenerateCardSVG renders a BestN summary.
type CardOptions struct {
	Theme       Theme
	EmbedImages bool
	Assets      *AssetCache
	Colors      *InverseColorCache
	Background  string // file path to a background/blur image, optional
}

const cardWidth = 1200
const rowHeight = 64
const headerHeight = 220

// GenerateCardSVG composes a BestN summary card: a header with player name,
// RKS, and AP-top-3 average, followed by one row per chart ordered the way
// stats.Charts was handed in (best-RKS first is the caller's job).
func GenerateCardSVG(stats PlayerStats, opts CardOptions) (string, error) {
	var b strings.Builder
	b.Grow(cardSVGBufferHint)

	height := headerHeight + len(stats.Charts)*rowHeight + 40
	fg := opts.Theme.textColor()

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		cardWidth, height, cardWidth, height)
	b.WriteString(`<defs>`)
	fmt.Fprintf(&b, `<linearGradient id="%s" x1="0" y1="0" x2="1" y2="1">`, opts.Theme.gradientID())
	b.WriteString(`<stop offset="0%" stop-color="#ffd76a"/><stop offset="100%" stop-color="#ff8a5b"/></linearGradient>`)
	b.WriteString(`</defs>`)

	if opts.Background != "" && opts.Assets != nil {
		if href, ok := opts.Assets.GetImageHref(opts.Background, opts.EmbedImages); ok {
			fmt.Fprintf(&b, `<image href="%s" x="0" y="0" width="%d" height="%d" preserveAspectRatio="xMidYMid slice"/>`,
				escapeXML(href), cardWidth, height)
		}
	}
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, cardWidth, height, opts.Theme.panelFill())

	name := stats.PlayerName
	if name == "" {
		name = "Player"
	}
	fmt.Fprintf(&b, `<text x="40" y="70" font-size="42" font-weight="700" fill="%s">%s</text>`, fg, escapeXML(name))
	fmt.Fprintf(&b, `<text x="40" y="120" font-size="28" fill="%s">RKS %.4f</text>`, fg, stats.RealRKS)
	fmt.Fprintf(&b, `<text x="40" y="155" font-size="22" fill="%s">Best%d avg %.4f · AP3 avg %.4f</text>`,
		fg, stats.N, stats.Best27Avg, stats.APTop3Avg)
	if stats.ChallengeRank != nil {
		fmt.Fprintf(&b, `<text x="40" y="190" font-size="20" fill="%s">Challenge %s</text>`,
			escapeXML(stats.ChallengeRank.Color), escapeXML(stats.ChallengeRank.Level))
	}

	y := headerHeight
	for _, c := range stats.Charts {
		writeChartRow(&b, c, y, fg)
		y += rowHeight
	}

	if stats.CustomFooterText != "" {
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="16" fill="%s" text-anchor="end">%s</text>`,
			cardWidth-40, height-16, fg, escapeXML(stats.CustomFooterText))
	}
	if stats.IsUserGenerated {
		b.WriteString(`<rect x="0" y="0" width="1" height="1" fill="#010203" opacity="0.004"/>`)
	}

	b.WriteString(`</svg>`)
	return b.String(), nil
}

func writeChartRow(b *strings.Builder, c ChartScore, y int, fg string) {
	scoreText := "—"
	if c.Score != nil {
		scoreText = fmt.Sprintf("%.0f", *c.Score)
	}
	fc := ""
	if c.IsFullCombo {
		fc = " FC"
	}
	if c.IsPhi {
		fc = " Φ"
	}
	fmt.Fprintf(b, `<g transform="translate(40,%d)">`, y)
	fmt.Fprintf(b, `<text font-size="20" fill="%s">%s [%s]</text>`, fg, escapeXML(c.SongName), escapeXML(c.Difficulty))
	fmt.Fprintf(b, `<text x="640" font-size="20" fill="%s" text-anchor="end">%s  acc %.2f%%  rks %.4f%s</text>`,
		fg, scoreText, c.Acc, c.RKS, fc)
	b.WriteString(`</g>`)
}

// GenerateSongSVG composes a single-song card: one row per difficulty that
// has a recorded score, in EZ/HD/IN/AT order.
func GenerateSongSVG(data SongRenderData, opts CardOptions) (string, error) {
	var b strings.Builder
	b.Grow(32 * 1024)

	order := []string{"EZ", "HD", "IN", "AT"}
	rows := 0
	for _, d := range order {
		if data.DifficultyScores[d] != nil {
			rows++
		}
	}
	height := 160 + rows*rowHeight
	fg := opts.Theme.textColor()

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		cardWidth, height, cardWidth, height)
	if data.IllustrationPath != "" && opts.Assets != nil {
		if href, ok := opts.Assets.GetImageHref(data.IllustrationPath, opts.EmbedImages); ok {
			fmt.Fprintf(&b, `<image href="%s" x="0" y="0" width="%d" height="%d" preserveAspectRatio="xMidYMid slice"/>`,
				escapeXML(href), cardWidth, height)
		}
	}
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, cardWidth, height, opts.Theme.panelFill())
	fmt.Fprintf(&b, `<text x="40" y="60" font-size="36" font-weight="700" fill="%s">%s</text>`, fg, escapeXML(data.SongName))
	if data.PlayerName != "" {
		fmt.Fprintf(&b, `<text x="40" y="100" font-size="22" fill="%s">%s</text>`, fg, escapeXML(data.PlayerName))
	}

	y := 140
	for _, d := range order {
		s := data.DifficultyScores[d]
		if s == nil {
			continue
		}
		cs := ChartScore{
			SongName: d, Difficulty: d, Score: s.Score, Acc: valueOr(s.Acc), RKS: valueOr(s.RKS),
			DifficultyValue: valueOr(s.DifficultyValue), IsFullCombo: boolOr(s.IsFullCombo), IsPhi: boolOr(s.IsPhi),
		}
		writeChartRow(&b, cs, y, fg)
		y += rowHeight
	}
	if data.CustomFooterText != "" {
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="16" fill="%s" text-anchor="end">%s</text>`,
			cardWidth-40, height-16, fg, escapeXML(data.CustomFooterText))
	}
	b.WriteString(`</svg>`)
	return b.String(), nil
}

func valueOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func boolOr(p *bool) bool {
	return p != nil && *p
}

// GenerateLeaderboardSVG composes a ranked leaderboard snapshot card, one
// row per entry up to data.DisplayCount.
func GenerateLeaderboardSVG(data LeaderboardRenderData, opts CardOptions) (string, error) {
	n := data.DisplayCount
	if n <= 0 || n > len(data.Entries) {
		n = len(data.Entries)
	}

	var b strings.Builder
	b.Grow(16*1024 + n*128)

	height := 140 + n*48
	fg := opts.Theme.textColor()

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		cardWidth, height, cardWidth, height)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, cardWidth, height, opts.Theme.panelFill())
	fmt.Fprintf(&b, `<text x="40" y="60" font-size="34" font-weight="700" fill="%s">%s</text>`, fg, escapeXML(data.Title))

	y := 110
	for i, e := range data.Entries[:n] {
		fmt.Fprintf(&b, `<text x="40" y="%d" font-size="22" fill="%s">#%d %s</text>`, y, fg, i+1, escapeXML(e.PlayerName))
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="22" fill="%s" text-anchor="end">%.4f</text>`,
			cardWidth-40, y, fg, e.RKS)
		y += 48
	}
	b.WriteString(`</svg>`)
	return b.String(), nil
}

// Package matcher resolves video titles against the track catalog using
// staged search queries and fuzzy string scoring.
package matcher

import (
	"regexp"
	"strings"
)

var (
	// Promotional suffixes that video uploaders append to titles.
	noisePattern = regexp.MustCompile(`(?i)[\(\[][^)\]]*(official|video|audio|lyric|lyrics|visuali[sz]er|hd|hq|4k|remaster(ed)?|live|mv)[^)\]]*[\)\]]`)

	trailingNoisePattern = regexp.MustCompile(`(?i)\s*[|•]\s*(official\s+)?(music\s+)?(video|audio|lyrics?).*$`)

	spacePattern = regexp.MustCompile(`\s+`)

	dashSplitPattern = regexp.MustCompile(`^(.+?)\s*[-–—]\s*(.+)$`)

	byPattern = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`)

	colonPattern = regexp.MustCompile(`^(.+?)\s*:\s*(.+)$`)

	scorePunctPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

// CleanTitle strips uploader decoration from a video title: bracketed
// qualifiers like "(Official Video)" or "[HD]" and trailing "| Official
// Audio" style segments.
func CleanTitle(title string) string {
	cleaned := noisePattern.ReplaceAllString(title, " ")
	cleaned = trailingNoisePattern.ReplaceAllString(cleaned, "")
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")

	return strings.TrimSpace(cleaned)
}

// ParseArtistTrack guesses the artist and track halves of a cleaned title.
// Returns ok=false when no separator convention applies, in which case the
// caller should search on the whole title.
//
// Conventions tried, in order:
//
//	"Artist - Track" (also en/em dash)
//	"Track by Artist"
//	"Artist: Track"
func ParseArtistTrack(title string) (artist, track string, ok bool) {
	if m := dashSplitPattern.FindStringSubmatch(title); m != nil {
		artist, track = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if len(artist) > 1 && len(track) > 1 {
			return artist, track, true
		}
	}

	if m := byPattern.FindStringSubmatch(title); m != nil {
		track, artist = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if len(artist) > 1 && len(track) > 1 {
			return artist, track, true
		}
	}

	if m := colonPattern.FindStringSubmatch(title); m != nil {
		artist, track = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if len(artist) > 1 && len(track) > 1 {
			return artist, track, true
		}
	}

	return "", "", false
}

var scoreNoiseTokens = map[string]bool{
	"official":  true,
	"video":     true,
	"audio":     true,
	"lyric":     true,
	"lyrics":    true,
	"music":     true,
	"hd":        true,
	"hq":        true,
	"feat":      true,
	"ft":        true,
	"featuring": true,
}

// normalizeForScore reduces a string to a comparable form: lowercase, no
// punctuation, noise tokens removed. Used on both sides before similarity
// scoring so decoration differences do not dominate the score.
func normalizeForScore(s string) string {
	s = strings.ToLower(CleanTitle(s))
	s = scorePunctPattern.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if scoreNoiseTokens[f] {
			continue
		}
		kept = append(kept, f)
	}

	return strings.Join(kept, " ")
}

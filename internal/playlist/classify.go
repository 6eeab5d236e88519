package playlist

import (
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Sentinel tokens recognized as bumper markers. Matched after trimming,
// case-insensitively, against the whole line.
var sentinelKinds = map[string]Kind{
	"UP NEXT": KindUpNext,
	"SASSY":   KindSassy,
	"NETWORK": KindNetwork,
	"WEATHER": KindWeather,
}

// Reserved directory names under a bumpers/ ancestor.
var bumperDirKinds = map[string]Kind{
	"up_next": KindUpNext,
	"sassy":   KindSassy,
	"network": KindNetwork,
	"weather": KindWeather,
}

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".m4v":  {},
	".ts":   {},
	".webm": {},
}

var (
	seasonEpisodePattern = regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._-]?E(\d{1,3})\b`)
	crossPattern         = regexp.MustCompile(`\b(\d{1,2})x(\d{1,3})\b`)
	seasonDirPattern     = regexp.MustCompile(`(?i)^season[ ._-]?(\d{1,3})$`)
	leadingNumberPattern = regexp.MustCompile(`^(\d{1,3})\b`)
	separatorPattern     = regexp.MustCompile(`[._]+`)
	spacePattern         = regexp.MustCompile(`\s+`)
)

var showCaser = cases.Title(language.English)

// Classify is the single classification point for playlist lines. Rules
// apply in priority order and the first match wins:
//
//  1. exact sentinel token (case-insensitive, whitespace trimmed)
//  2. reserved bumper directory segment (bumpers/<category>/...)
//  3. recognized video extension -> Episode, with best-effort identity
//  4. Unknown
//
// Classify is pure: the same raw text always yields the same Entry.
func Classify(raw string) Entry {
	trimmed := strings.TrimSpace(raw)
	entry := Entry{Raw: raw, Path: trimmed, Kind: KindUnknown}
	if trimmed == "" {
		return entry
	}

	if kind, ok := sentinelKinds[strings.ToUpper(trimmed)]; ok {
		entry.Kind = kind
		return entry
	}

	if kind, ok := bumperKindFromPath(trimmed); ok {
		entry.Kind = kind
		return entry
	}

	ext := strings.ToLower(filepath.Ext(trimmed))
	if _, ok := videoExtensions[ext]; ok {
		entry.Kind = KindEpisode
		entry.Identity = extractIdentity(trimmed)
		return entry
	}

	return entry
}

// ClassifyAll maps Classify over a slice of raw lines.
func ClassifyAll(lines []string) []Entry {
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, Classify(line))
	}
	return entries
}

func bumperKindFromPath(p string) (Kind, bool) {
	segments := strings.Split(path.Clean(filepath.ToSlash(p)), "/")
	for i, segment := range segments {
		if !strings.EqualFold(segment, "bumpers") || i+1 >= len(segments) {
			continue
		}
		if kind, ok := bumperDirKinds[strings.ToLower(segments[i+1])]; ok {
			return kind, true
		}
	}
	return KindUnknown, false
}

// extractIdentity applies the filename patterns in priority order; the first
// pattern that matches wins. No match leaves the identity zero.
func extractIdentity(p string) Identity {
	base := filepath.Base(p)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if m := seasonEpisodePattern.FindStringSubmatchIndex(stem); m != nil {
		season, _ := strconv.Atoi(stem[m[2]:m[3]])
		episode, _ := strconv.Atoi(stem[m[4]:m[5]])
		return Identity{
			Show:    normalizeShow(stem[:m[0]], parentDir(p)),
			Season:  season,
			Episode: episode,
		}
	}

	if m := crossPattern.FindStringSubmatchIndex(stem); m != nil {
		season, _ := strconv.Atoi(stem[m[2]:m[3]])
		episode, _ := strconv.Atoi(stem[m[4]:m[5]])
		return Identity{
			Show:    normalizeShow(stem[:m[0]], parentDir(p)),
			Season:  season,
			Episode: episode,
		}
	}

	if season, show, ok := seasonFromAncestors(p); ok {
		if m := leadingNumberPattern.FindStringSubmatch(stem); m != nil {
			episode, _ := strconv.Atoi(m[1])
			return Identity{
				Show:    normalizeShow(show, ""),
				Season:  season,
				Episode: episode,
			}
		}
	}

	return Identity{}
}

// seasonFromAncestors looks for a "Season NN" directory ancestor and returns
// the season number plus the directory above it as the show name.
func seasonFromAncestors(p string) (int, string, bool) {
	segments := strings.Split(path.Clean(filepath.ToSlash(p)), "/")
	// Last segment is the filename.
	for i := len(segments) - 2; i >= 0; i-- {
		m := seasonDirPattern.FindStringSubmatch(segments[i])
		if m == nil {
			continue
		}
		season, err := strconv.Atoi(m[1])
		if err != nil || season <= 0 {
			return 0, "", false
		}
		show := ""
		if i > 0 {
			show = segments[i-1]
		}
		return season, show, true
	}
	return 0, "", false
}

func parentDir(p string) string {
	dir := filepath.Base(filepath.Dir(p))
	if dir == "." || dir == "/" {
		return ""
	}
	if seasonDirPattern.MatchString(dir) {
		grand := filepath.Base(filepath.Dir(filepath.Dir(p)))
		if grand == "." || grand == "/" {
			return ""
		}
		return grand
	}
	return dir
}

// normalizeShow cleans a show name fragment: separators become spaces,
// runs of whitespace collapse, and the result is title-cased. Falls back to
// the provided directory name when the fragment is empty.
func normalizeShow(fragment, fallback string) string {
	cleaned := cleanShowText(fragment)
	if cleaned == "" {
		cleaned = cleanShowText(fallback)
	}
	if cleaned == "" {
		return ""
	}
	return showCaser.String(cleaned)
}

func cleanShowText(value string) string {
	value = separatorPattern.ReplaceAllString(value, " ")
	value = strings.ReplaceAll(value, "-", " ")
	value = spacePattern.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

package shared

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots     = regexp.MustCompile(`\.+$`)
	whitespace       = regexp.MustCompile(`\s+`)
	nonAlnum         = regexp.MustCompile(`[^a-z0-9\s]`)

	titleSuffix   = regexp.MustCompile(`(?i)\s*[-–]\s*(Remaster(ed)?|Remix|Live|Radio Edit|Single Version).*$`)
	remasterParen = regexp.MustCompile(`(?i)\s*\([^)]*Remaster[^)]*\)`)
	bracketChunk  = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	tagSeparator  = regexp.MustCompile(`^(.*?)\s*[-–—:]\s*(.+)$`)
	trailingSep   = regexp.MustCompile(`\s*[-–—:]\s*$`)
	reissueYear   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	youTubeID     = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// stopwords are dropped before comparing titles token by token.
var stopwords = map[string]struct{}{
	"remaster": {}, "remastered": {}, "mix": {}, "edit": {}, "version": {}, "mono": {}, "stereo": {},
	"live": {}, "demo": {}, "radio": {}, "explicit": {}, "clean": {}, "instrumental": {},
	"bonus": {}, "deluxe": {}, "anniversary": {}, "extended": {}, "feat": {}, "featuring": {},
	"official": {}, "video": {}, "audio": {}, "lyrics": {}, "lyric": {}, "hd": {}, "4k": {},
}

var albumTagWords = []string{
	"remaster", "deluxe", "edition", "expanded", "expansion", "anniversary", "special",
	"collector", "limited", "ultimate", "definitive", "version", "edit", "mix", "mono",
	"stereo", "bonus", "reissue", "rerelease", "extended", "digital", "explicit", "clean",
	"super", "luxury", "soundtrack",
}

// FoldText lowercases s and strips diacritics ("Beyoncé" -> "beyonce").
func FoldText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// NormalizeText folds s and reduces it to space separated alphanumeric words.
func NormalizeText(s string) string {
	s = FoldText(s)
	s = strings.NewReplacer("-", " ", "_", " ", "'", "", "’", "").Replace(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// NormalizeTrackKey creates a normalized key for matching tracks across services.
func NormalizeTrackKey(title, artist string) string {
	return NormalizeText(title) + "|" + NormalizeText(artist)
}

// Tokenize splits s into normalized words, dropping version and format noise.
func Tokenize(s string) []string {
	var tokens []string
	for _, tok := range strings.Fields(NormalizeText(s)) {
		if _, skip := stopwords[tok]; !skip {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// TokenContainment is the share of want's tokens present in got, in [0, 1].
func TokenContainment(want, got string) float64 {
	wantTokens := Tokenize(want)
	if len(wantTokens) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, tok := range Tokenize(got) {
		have[tok] = struct{}{}
	}
	hits := 0
	for _, tok := range wantTokens {
		if _, ok := have[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(wantTokens))
}

// CleanAlbumName strips edition and remaster tags from an album title.
// The input is returned unchanged when nothing would be left.
func CleanAlbumName(album string) string {
	cleaned := album
	for _, chunk := range bracketChunk.FindAllString(album, -1) {
		inner := strings.TrimSpace(chunk[1 : len(chunk)-1])
		if inner != "" && hasAlbumTag(inner) {
			cleaned = strings.Replace(cleaned, chunk, " ", 1)
		}
	}

	for {
		m := tagSeparator.FindStringSubmatch(strings.TrimSpace(cleaned))
		if m == nil || !hasAlbumTag(m[2]) {
			break
		}
		cleaned = m[1]
	}

	cleaned = strings.TrimSpace(whitespace.ReplaceAllString(cleaned, " "))
	cleaned = strings.TrimSpace(trailingSep.ReplaceAllString(cleaned, ""))
	if cleaned == "" {
		return album
	}
	return cleaned
}

func hasAlbumTag(s string) bool {
	n := FoldText(s)
	if reissueYear.MatchString(n) && (strings.Contains(n, "remaster") || strings.Contains(n, "reissue")) {
		return true
	}
	for _, w := range albumTagWords {
		if strings.Contains(n, w) {
			return true
		}
	}
	return false
}

// CleanTrackTitle removes remaster and edit suffixes that confuse a video search.
func CleanTrackTitle(title string) string {
	title = titleSuffix.ReplaceAllString(title, "")
	title = remasterParen.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// BuildSearchQuery builds "<primary artist> <cleaned title>".
func BuildSearchQuery(primaryArtist, title string) string {
	if strings.TrimSpace(title) == "" {
		title = "Unknown Track"
	}
	return strings.TrimSpace(SanitizeFileName(primaryArtist) + " " + CleanTrackTitle(SanitizeFileName(title)))
}

// SanitizeFileName replaces characters that are invalid in file names.
func SanitizeFileName(name string) string {
	name = invalidFileChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = whitespace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// TrackBasePath returns dir/Artist/Album/Title without an extension.
func TrackBasePath(dir, artist, album, title string) string {
	part := func(s, fallback string) string {
		if s = SanitizeFileName(s); s == "" {
			return fallback
		}
		return s
	}
	return filepath.Join(dir,
		part(artist, "Unknown Artist"),
		part(album, "Unknown Album"),
		part(title, "Unknown Track"),
	)
}

// CanonicalYouTubeURL rewrites youtu.be, /shorts/ and /embed/ links to
// https://www.youtube.com/watch?v=ID. Other URLs are returned unchanged.
func CanonicalYouTubeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	case strings.HasPrefix(raw, "www."):
		raw = "https://" + raw
	case strings.HasPrefix(raw, "http://"):
		raw = "https://" + strings.TrimPrefix(raw, "http://")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Host)
	path := strings.Trim(u.Path, "/")
	watch := func(id string) string { return "https://www.youtube.com/watch?v=" + id }

	switch {
	case strings.Contains(host, "youtu.be") && path != "":
		id, _, _ := strings.Cut(path, "/")
		return watch(id)
	case strings.HasSuffix(host, "youtube.com"):
		if path == "watch" {
			if v := u.Query().Get("v"); v != "" {
				return watch(v)
			}
		}
		parts := strings.Split(path, "/")
		if len(parts) >= 2 && (parts[0] == "shorts" || parts[0] == "embed") {
			return watch(parts[1])
		}
		if youTubeID.MatchString(path) {
			return watch(path)
		}
	}
	return raw
}

// IsYouTubeURL reports whether raw points at youtube.com or youtu.be.
func IsYouTubeURL(raw string) bool {
	return strings.Contains(raw, "youtube.com") || strings.Contains(raw, "youtu.be")
}

// FormatDuration renders milliseconds as m:ss, or ??:?? when unknown.
func FormatDuration(ms int) string {
	if ms <= 0 {
		return "??:??"
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

package storage

import (
	"net/url"
	"strings"
)

// RewritePlaylist converts relative media-segment lines in an HLS playlist
// to absolute URLs against the playlist's own location, so the stored copy
// keeps pointing at the origin's segments. Tag and comment lines pass
// through byte-for-byte; nothing else about the playlist is touched.
func RewritePlaylist(content, playlistURL string) string {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return content
	}

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if !isSegmentLine(stripped) {
			out = append(out, line)
			continue
		}
		if strings.HasPrefix(stripped, "http") {
			out = append(out, stripped)
			continue
		}
		ref, err := url.Parse(stripped)
		if err != nil {
			out = append(out, line)
			continue
		}
		out = append(out, base.ResolveReference(ref).String())
	}

	return strings.Join(out, "\n")
}

func isSegmentLine(line string) bool {
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	return strings.HasSuffix(line, ".ts") || strings.Contains(line, "/ts?")
}

package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the cache key for a conversion. When the video
// ID is known it is the sole source discriminator, so every surface
// form of the same clip collapses to one key; the canonical URL stands
// in only for links whose ID could not be extracted. Format and
// quality are part of the key so the same clip at different qualities
// caches independently.
func Fingerprint(videoID, canonicalURL, format, quality string) string {
	source := videoID
	if source == "" {
		source = canonicalURL
	}
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{source, format, quality}, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

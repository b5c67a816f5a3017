package extractor

import (
	"html"
	"regexp"
	"strings"
)

// Page markers, in default preference order. Mobile and embed pages
// inline the stream URL under one of these JSON keys.
var (
	markerPlayAddr     = regexp.MustCompile(`"playAddr"\s*:\s*"(https?:[^"]+)"`)
	markerDownloadAddr = regexp.MustCompile(`"downloadAddr"\s*:\s*"(https?:[^"]+)"`)
	markerPlayURL      = regexp.MustCompile(`"playUrl"\s*:\s*"(https?:[^"]+)"`)
	markerVideoURL     = regexp.MustCompile(`"videoUrl"\s*:\s*"(https?:[^"]+)"`)
	markerContentURL   = regexp.MustCompile(`"contentUrl"\s*:\s*"(https?:[^"]+)"`)
)

var (
	markerAuthor = regexp.MustCompile(`"(?:nickname|author)"\s*:\s*"([^"]{1,200})"`)
	markerDesc   = regexp.MustCompile(`"desc"\s*:\s*"([^"]{0,500})"`)
	markerCover  = regexp.MustCompile(`"(?:cover|originCover)"\s*:\s*"(https?:[^"]+)"`)

	watermarkParam = regexp.MustCompile(`([?&])watermark=1`)
)

// markerOrder returns the URL markers in preference order.
func markerOrder(preferDownload bool) []*regexp.Regexp {
	if preferDownload {
		return []*regexp.Regexp{markerDownloadAddr, markerPlayAddr, markerPlayURL, markerVideoURL, markerContentURL}
	}
	return []*regexp.Regexp{markerPlayAddr, markerDownloadAddr, markerPlayURL, markerVideoURL, markerContentURL}
}

// findMediaURL scans page text for a stream URL marker. Markers are
// tried in preference order over the whole page, so a preferred marker
// wins regardless of where it appears relative to the others.
func findMediaURL(page string, opts StrategyOptions) string {
	for _, marker := range markerOrder(opts.PreferDownloadAddr) {
		if m := marker.FindStringSubmatch(page); m != nil {
			return cleanMediaURL(m[1], opts)
		}
	}
	return ""
}

// cleanMediaURL undoes the JSON-string escaping the page applies to
// inlined URLs and optionally rewrites the watermark parameter.
func cleanMediaURL(raw string, opts StrategyOptions) string {
	u := unescapePageString(raw)
	if opts.StripWatermark {
		u = watermarkParam.ReplaceAllString(u, "${1}watermark=0")
	}
	return u
}

// unescapePageString undoes the JSON unicode escapes, escaped
// slashes, and HTML entities found in inlined page JSON. Any
// backslash left after the known escapes is stray and dropped.
func unescapePageString(s string) string {
	s = strings.ReplaceAll(s, `\u002F`, "/")
	s = strings.ReplaceAll(s, `\u002f`, "/")
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, `\/`, "/")
	s = strings.ReplaceAll(s, `\`, "")
	return html.UnescapeString(s)
}

// findMeta pulls best-effort author, description, and cover out of
// page text. Missing fields stay empty.
func findMeta(page string) (author, desc, cover string) {
	if m := markerAuthor.FindStringSubmatch(page); m != nil {
		author = unescapePageString(m[1])
	}
	if m := markerDesc.FindStringSubmatch(page); m != nil {
		desc = unescapePageString(m[1])
	}
	if m := markerCover.FindStringSubmatch(page); m != nil {
		cover = unescapePageString(m[1])
	}
	return author, desc, cover
}

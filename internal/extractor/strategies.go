package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"clip2mp3/internal/platform"
)

// mobileStrategy fetches the mobile site's video page, which inlines
// the stream URL in a JSON blob inside the markup. It is the cheapest
// strategy and runs first by default.
type mobileStrategy struct {
	client  *Client
	opts    StrategyOptions
	baseURL string
}

func (s *mobileStrategy) Name() string { return "mobile" }

func (s *mobileStrategy) base() string {
	if s.baseURL != "" {
		return s.baseURL
	}
	return "https://m.tiktok.com"
}

func (s *mobileStrategy) Extract(ctx context.Context, link *platform.Link) (*Descriptor, error) {
	if link.VideoID == "" || !isNumeric(link.VideoID) {
		return nil, fmt.Errorf("%w: mobile page needs a numeric video ID", errNotApplicable)
	}

	pageURL := fmt.Sprintf("%s/v/%s.html", s.base(), link.VideoID)
	body, err := s.client.fetch(ctx, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("mobile page fetch: %w", err)
	}

	page := string(body)
	mediaURL := findMediaURL(page, s.opts)
	if mediaURL == "" {
		return nil, fmt.Errorf("no stream URL marker in mobile page")
	}

	author, desc, cover := findMeta(page)
	return &Descriptor{
		MediaURL:    mediaURL,
		Headers:     refererHeaders(pageURL),
		VideoID:     link.VideoID,
		Author:      author,
		Description: desc,
		CoverURL:    cover,
	}, nil
}

// webAPIStrategy queries the item-detail JSON API the web client uses.
type webAPIStrategy struct {
	client  *Client
	opts    StrategyOptions
	baseURL string
}

func (s *webAPIStrategy) Name() string { return "api" }

func (s *webAPIStrategy) base() string {
	if s.baseURL != "" {
		return s.baseURL
	}
	return "https://m.tiktok.com"
}

// itemDetail mirrors the subset of the API response we consume.
type itemDetail struct {
	ItemInfo struct {
		ItemStruct struct {
			ID    string `json:"id"`
			Desc  string `json:"desc"`
			Video struct {
				PlayAddr     string `json:"playAddr"`
				DownloadAddr string `json:"downloadAddr"`
				Cover        string `json:"cover"`
				OriginCover  string `json:"originCover"`
			} `json:"video"`
			Author struct {
				Nickname string `json:"nickname"`
				UniqueID string `json:"uniqueId"`
			} `json:"author"`
		} `json:"itemStruct"`
	} `json:"itemInfo"`
}

func (s *webAPIStrategy) Extract(ctx context.Context, link *platform.Link) (*Descriptor, error) {
	if link.VideoID == "" || !isNumeric(link.VideoID) {
		return nil, fmt.Errorf("%w: item-detail API needs a numeric video ID", errNotApplicable)
	}

	apiURL := fmt.Sprintf("%s/api/item/detail/?itemId=%s", s.base(), link.VideoID)
	header := http.Header{}
	header.Set("Accept", "application/json")
	body, err := s.client.fetch(ctx, apiURL, header)
	if err != nil {
		return nil, fmt.Errorf("item-detail fetch: %w", err)
	}

	var detail itemDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("item-detail decode: %w", err)
	}

	item := detail.ItemInfo.ItemStruct
	mediaURL := item.Video.PlayAddr
	if s.opts.PreferDownloadAddr && item.Video.DownloadAddr != "" {
		mediaURL = item.Video.DownloadAddr
	}
	if mediaURL == "" {
		mediaURL = item.Video.DownloadAddr
	}
	if mediaURL == "" {
		return nil, fmt.Errorf("item-detail response has no stream URL")
	}

	cover := item.Video.OriginCover
	if cover == "" {
		cover = item.Video.Cover
	}
	author := item.Author.Nickname
	if author == "" {
		author = item.Author.UniqueID
	}

	return &Descriptor{
		MediaURL:    cleanMediaURL(mediaURL, s.opts),
		Headers:     refererHeaders(link.Canonical),
		VideoID:     link.VideoID,
		Author:      author,
		Description: item.Desc,
		CoverURL:    cover,
	}, nil
}

// embedStrategy loads the oEmbed player page. The player inlines a
// schema.org VideoObject whose contentUrl points at the stream.
type embedStrategy struct {
	client  *Client
	opts    StrategyOptions
	baseURL string
}

func (s *embedStrategy) Name() string { return "embed" }

func (s *embedStrategy) base() string {
	if s.baseURL != "" {
		return s.baseURL
	}
	return "https://www.tiktok.com"
}

func (s *embedStrategy) Extract(ctx context.Context, link *platform.Link) (*Descriptor, error) {
	if link.VideoID == "" || !isNumeric(link.VideoID) {
		return nil, fmt.Errorf("%w: embed player needs a numeric video ID", errNotApplicable)
	}

	pageURL := fmt.Sprintf("%s/embed/v2/%s", s.base(), link.VideoID)
	body, err := s.client.fetch(ctx, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("embed page fetch: %w", err)
	}

	desc := &Descriptor{
		VideoID: link.VideoID,
		Headers: refererHeaders(pageURL),
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body))); err == nil {
		doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			var obj struct {
				Type         string `json:"@type"`
				ContentURL   string `json:"contentUrl"`
				Name         string `json:"name"`
				Description  string `json:"description"`
				ThumbnailURL string `json:"thumbnailUrl"`
			}
			if err := json.Unmarshal([]byte(sel.Text()), &obj); err != nil {
				return true
			}
			if obj.Type != "VideoObject" || obj.ContentURL == "" {
				return true
			}
			desc.MediaURL = cleanMediaURL(obj.ContentURL, s.opts)
			desc.Author = obj.Name
			desc.Description = obj.Description
			desc.CoverURL = obj.ThumbnailURL
			return false
		})
		if desc.CoverURL == "" {
			if cover, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
				desc.CoverURL = cover
			}
		}
	}

	// Older player builds inline the URL as a page marker instead.
	if desc.MediaURL == "" {
		desc.MediaURL = findMediaURL(string(body), s.opts)
	}
	if desc.MediaURL == "" {
		return nil, fmt.Errorf("no stream URL in embed page")
	}
	if desc.Author == "" && desc.Description == "" {
		desc.Author, desc.Description, _ = findMeta(string(body))
	}
	return desc, nil
}

// mirrorStrategy drives a third-party downloader site: scrape the CSRF
// token from its landing page, then submit the video URL to its search
// endpoint. It is the only strategy that works without a numeric video
// ID, so it also serves unresolved short links.
type mirrorStrategy struct {
	client  *Client
	baseURL string
}

func (s *mirrorStrategy) Name() string { return "mirror" }

func (s *mirrorStrategy) base() string {
	if s.baseURL != "" {
		return s.baseURL
	}
	return "https://ttdownloader.com"
}

var mirrorMediaLink = regexp.MustCompile(`https?://[^"'\s<>]+\.mp4[^"'\s<>]*`)

func (s *mirrorStrategy) Extract(ctx context.Context, link *platform.Link) (*Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base()+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mirror landing page: %w", err)
	}
	cookies := resp.Cookies()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("mirror landing page parse: %w", err)
	}

	token, ok := doc.Find(`input#token, input[name="token"]`).Attr("value")
	if !ok || token == "" {
		return nil, fmt.Errorf("mirror landing page has no request token")
	}

	form := urlValues(map[string]string{
		"url":    link.Raw,
		"format": "",
		"token":  token,
	})
	header := http.Header{}
	header.Set("Referer", s.base()+"/")
	for _, c := range cookies {
		header.Add("Cookie", c.Name+"="+c.Value)
	}

	body, err := s.client.postForm(ctx, s.base()+"/search/", form, header)
	if err != nil {
		return nil, fmt.Errorf("mirror search: %w", err)
	}

	mediaURL := firstMirrorLink(body)
	if mediaURL == "" {
		return nil, fmt.Errorf("mirror search returned no media link")
	}

	return &Descriptor{
		MediaURL: mediaURL,
		Headers:  refererHeaders(s.base() + "/"),
		VideoID:  link.VideoID,
	}, nil
}

// firstMirrorLink prefers the structured result anchor and falls back
// to a raw scan for an .mp4 URL.
func firstMirrorLink(body []byte) string {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body))); err == nil {
		var found string
		doc.Find(".download-link, .result a, a.download").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if href, ok := sel.Attr("href"); ok && strings.HasPrefix(href, "http") {
				found = href
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	if m := mirrorMediaLink.Find(body); m != nil {
		return unescapePageString(string(m))
	}
	return ""
}

func urlValues(m map[string]string) url.Values {
	v := url.Values{}
	for k, val := range m {
		v.Set(k, val)
	}
	return v
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func refererHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("Referer", referer)
	return h
}

package proxyring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Source discovers proxies from an external listing.
type Source interface {
	Name() string
	Fetch(ctx context.Context, client *http.Client) ([]Proxy, error)
}

// DefaultSources returns the built-in discovery sources.
func DefaultSources() []Source {
	return []Source{
		&gimmeProxySource{endpoint: "https://gimmeproxy.com/api/getProxy?protocol=http&supportsHttps=true"},
		&freeProxyListSource{endpoint: "https://free-proxy-list.net/"},
		&geonodeSource{endpoint: "https://proxylist.geonode.com/api/proxy-list?limit=50&page=1&sort_by=lastChecked&sort_type=desc&protocols=http"},
	}
}

// gimmeProxySource returns one proxy per call from the gimmeproxy API.
type gimmeProxySource struct {
	endpoint string
}

func (s *gimmeProxySource) Name() string { return "gimmeproxy" }

func (s *gimmeProxySource) Fetch(ctx context.Context, client *http.Client) ([]Proxy, error) {
	var body struct {
		Protocol string `json:"protocol"`
		IP       string `json:"ip"`
		Port     string `json:"port"`
	}
	if err := fetchJSON(ctx, client, s.endpoint, &body); err != nil {
		return nil, err
	}
	if body.IP == "" || body.Port == "" {
		return nil, fmt.Errorf("gimmeproxy response missing ip/port")
	}

	u, err := url.Parse(fmt.Sprintf("http://%s:%s", body.IP, body.Port))
	if err != nil {
		return nil, err
	}
	return []Proxy{{URL: u, Source: s.Name()}}, nil
}

// freeProxyListSource scrapes the free-proxy-list.net HTML table,
// keeping rows flagged as HTTPS-capable.
type freeProxyListSource struct {
	endpoint string
}

func (s *freeProxyListSource) Name() string { return "free-proxy-list" }

func (s *freeProxyListSource) Fetch(ctx context.Context, client *http.Client) ([]Proxy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var proxies []Proxy
	doc.Find("table tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 7 {
			return true
		}
		ip := strings.TrimSpace(cells.Eq(0).Text())
		port := strings.TrimSpace(cells.Eq(1).Text())
		https := strings.TrimSpace(cells.Eq(6).Text())
		if ip == "" || port == "" || !strings.EqualFold(https, "yes") {
			return true
		}
		u, err := url.Parse(fmt.Sprintf("http://%s:%s", ip, port))
		if err != nil {
			return true
		}
		proxies = append(proxies, Proxy{URL: u, Source: s.Name()})
		return len(proxies) < 20
	})
	return proxies, nil
}

// geonodeSource queries the geonode proxy-list JSON API.
type geonodeSource struct {
	endpoint string
}

func (s *geonodeSource) Name() string { return "geonode" }

func (s *geonodeSource) Fetch(ctx context.Context, client *http.Client) ([]Proxy, error) {
	var body struct {
		Data []struct {
			IP   string `json:"ip"`
			Port string `json:"port"`
		} `json:"data"`
	}
	if err := fetchJSON(ctx, client, s.endpoint, &body); err != nil {
		return nil, err
	}

	var proxies []Proxy
	for _, entry := range body.Data {
		if entry.IP == "" || entry.Port == "" {
			continue
		}
		u, err := url.Parse(fmt.Sprintf("http://%s:%s", entry.IP, entry.Port))
		if err != nil {
			continue
		}
		proxies = append(proxies, Proxy{URL: u, Source: s.Name()})
	}
	return proxies, nil
}

func fetchJSON(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

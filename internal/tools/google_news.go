package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	googleNewsRSS   = "https://news.google.com/rss/search"
	defaultUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultMaxItems = 8
)

// GoogleNews 通过 Google News RSS 搜索新闻标题。
type GoogleNews struct {
	client   *resty.Client
	baseURL  string
	language string
	country  string
	maxItems int
}

type GoogleNewsOption func(*GoogleNews)

// WithBaseURL 覆盖 RSS 地址，测试用。
func WithBaseURL(u string) GoogleNewsOption {
	return func(g *GoogleNews) { g.baseURL = u }
}

func WithMaxItems(n int) GoogleNewsOption {
	return func(g *GoogleNews) {
		if n > 0 {
			g.maxItems = n
		}
	}
}

// NewGoogleNews 按语言（en / ja）构建客户端。
func NewGoogleNews(language string, timeout time.Duration, opts ...GoogleNewsOption) *GoogleNews {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetHeader("User-Agent", defaultUA)
	g := &GoogleNews{
		client:   client,
		baseURL:  googleNewsRSS,
		language: "en",
		country:  "US",
		maxItems: defaultMaxItems,
	}
	if strings.EqualFold(strings.TrimSpace(language), "ja") {
		g.language, g.country = "ja", "JP"
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GoogleNews) buildURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("hl", g.language)
	v.Set("gl", g.country)
	v.Set("ceid", g.country+":"+g.language)
	return g.baseURL + "?" + v.Encode()
}

func (g *GoogleNews) Query(ctx context.Context, text string) ([]string, error) {
	q := strings.TrimSpace(text)
	if q == "" {
		return nil, nil
	}
	resp, err := g.client.R().SetContext(ctx).Get(g.buildURL(q + " stock"))
	if err != nil {
		return nil, fmt.Errorf("fetch google news: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("google news http %d", resp.StatusCode())
	}
	return parseRSSTitles(resp.String(), g.maxItems)
}

type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Items   []struct {
		Title       string `xml:"title"`
		Description string `xml:"description"`
		Source      struct {
			URL  string `xml:"url,attr"`
			Text string `xml:",chardata"`
		} `xml:"source"`
	} `xml:"channel>item"`
}

func parseRSSTitles(body string, limit int) ([]string, error) {
	var feed rssFeed
	if err := xml.Unmarshal([]byte(body), &feed); err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}
	var out []string
	seen := make(map[string]struct{})
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = htmlText(item.Description)
		}
		if title == "" {
			continue
		}
		if src := strings.TrimSpace(item.Source.Text); src != "" && !strings.HasSuffix(title, src) {
			title = title + " - " + src
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, title)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// htmlText 把 description 里的 HTML 片段转成纯文本。
func htmlText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

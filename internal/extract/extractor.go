// Package extract turns an arbitrary product page URL into best-effort
// commerce metadata. Fields resolve independently through a layered fallback
// chain: meta tags first, then embedded JSON-LD, then a regex scan of the
// rendered text. Given a reachable page the extraction always produces a
// result; only network and parse failures are errors.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxFetchSize = 5 << 20 // 5MB

// Some shops serve bot-default pages to unknown agents; a realistic browser
// user-agent keeps the metadata intact.
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Defaults used when no layer produced a value.
const (
	DefaultTitle    = "New Wish"
	DefaultPrice    = "0"
	DefaultCurrency = "USD"
)

// ErrInvalidURL is returned for empty or non-absolute input URLs.
var ErrInvalidURL = errors.New("invalid url")

// StatusError reports a non-success response from the target page.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch failed with status %d", e.Code)
}

// Result is the transient product of one extraction. Image is empty when no
// layer found one; Title and Price always carry at least their defaults.
type Result struct {
	Title     string
	Price     string
	Currency  string
	Image     string
	SourceURL string
}

// Extractor fetches and scrapes product pages. The zero value is not usable;
// use New.
type Extractor struct {
	client *http.Client
	logger *slog.Logger
}

// New creates an Extractor. A nil client gets a 10s-timeout default.
func New(client *http.Client, logger *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, logger: logger}
}

// Extract fetches rawURL and derives {title, price, currency, image} from it.
// Missing metadata never fails the extraction; absent fields are filled with
// the documented defaults.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	e.logger.Debug("extracting product metadata", "url", u.String())

	doc, err := e.fetch(ctx, u.String())
	if err != nil {
		e.logger.Warn("extraction fetch failed", "url", u.String(), "error", err)
		return Result{}, err
	}

	res := scrape(doc)
	res.SourceURL = u.String()

	e.logger.Info("extraction complete",
		"url", u.String(),
		"title", res.Title,
		"price", res.Price,
		"has_image", res.Image != "",
	)
	return res, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}

// page holds everything one tree walk collects; the fallback layers read
// from it without touching the document again.
type page struct {
	meta      map[string]string // property/name -> content, first occurrence wins
	docTitle  string
	imageSrc  string // <link rel="image_src">
	jsonLD    []string
	textParts []string
}

func scrape(doc *html.Node) Result {
	p := &page{meta: make(map[string]string)}
	p.walk(doc)

	var res Result

	// Title: og -> twitter card -> <title>.
	res.Title = firstOf(p.meta["og:title"], p.meta["twitter:title"], p.docTitle)

	// Image: og -> twitter card -> <link rel="image_src">.
	res.Image = firstOf(p.meta["og:image"], p.meta["twitter:image"], p.imageSrc)

	// Price/currency from commerce meta tags.
	res.Price = firstOf(p.meta["product:price:amount"], p.meta["og:price:amount"])
	res.Currency = firstOf(p.meta["product:price:currency"], p.meta["og:price:currency"])

	// JSON-LD fills whatever is still missing, independently per field.
	if res.Price == "" || res.Image == "" || res.Title == "" {
		ld := scanJSONLD(p.jsonLD)
		if res.Price == "" {
			res.Price = ld.price
		}
		if res.Currency == "" {
			res.Currency = ld.currency
		}
		if res.Image == "" {
			res.Image = ld.image
		}
		if res.Title == "" {
			res.Title = ld.name
		}
	}

	// Last resort: first currency-prefixed decimal in the rendered text.
	if res.Price == "" {
		res.Price = scanTextPrice(strings.Join(p.textParts, " "))
	}

	return normalize(res)
}

func (p *page) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "meta":
			key := firstOf(attr(n, "property"), attr(n, "name"))
			content := attr(n, "content")
			if key != "" && content != "" {
				if _, seen := p.meta[key]; !seen {
					p.meta[key] = content
				}
			}
		case "title":
			if p.docTitle == "" {
				p.docTitle = textContent(n)
			}
		case "link":
			if strings.EqualFold(attr(n, "rel"), "image_src") && p.imageSrc == "" {
				p.imageSrc = attr(n, "href")
			}
		case "script":
			if strings.HasPrefix(strings.ToLower(attr(n, "type")), "application/ld+json") {
				p.jsonLD = append(p.jsonLD, textContent(n))
				return // script body is not rendered text
			}
			return
		case "style":
			return
		}
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			p.textParts = append(p.textParts, t)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// priceRe matches a dollar-prefixed decimal like $1,299.99 or $15.
var priceRe = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})*(?:\.\d{2})?|\d+(?:\.\d{2})?)`)

func scanTextPrice(text string) string {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], ",", "")
}

func normalize(res Result) Result {
	res.Title = strings.Join(strings.Fields(res.Title), " ")
	if res.Title == "" {
		res.Title = DefaultTitle
	}
	res.Price = strings.TrimSpace(res.Price)
	if res.Price == "" {
		res.Price = DefaultPrice
	}
	if res.Currency == "" {
		res.Currency = DefaultCurrency
	}
	res.Image = strings.TrimSpace(res.Image)
	return res
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

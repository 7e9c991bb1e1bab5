package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shopassist/watchd/internal/watcher"
)

// GenericAdapter extracts product facts from arbitrary retail pages. It
// prefers embedded schema.org Product data and falls back to probing common
// selectors and meta tags.
type GenericAdapter struct {
	clock watcher.Clock
}

// NewGenericAdapter builds the fallback adapter.
func NewGenericAdapter(clock watcher.Clock) *GenericAdapter {
	return &GenericAdapter{clock: clock}
}

// Parse implements Adapter. It never panics; unusable content yields a
// snapshot with OK=false.
func (g *GenericAdapter) Parse(content []byte, pageURL string) watcher.ProductSnapshot {
	snap := watcher.ProductSnapshot{CheckedAt: g.clock.Now()}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		snap.Error = "unreadable document: " + err.Error()
		return snap
	}

	if p, ok := findStructuredProduct(doc); ok {
		applyStructuredProduct(&snap, p)
	}
	probeSelectors(&snap, doc)

	if snap.Title == "" && snap.Price == nil {
		snap.Error = "no product data found"
		return snap
	}
	snap.OK = true
	return snap
}

// structuredProduct is the subset of a schema.org Product node the pipeline
// cares about.
type structuredProduct struct {
	name         string
	image        string
	price        *float64
	currency     string
	availability string
}

func findStructuredProduct(doc *goquery.Document) (structuredProduct, bool) {
	var found structuredProduct
	var ok bool
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var node any
		if err := json.Unmarshal([]byte(s.Text()), &node); err != nil {
			return true
		}
		if p, hit := productFromNode(node); hit {
			found, ok = p, true
			return false
		}
		return true
	})
	return found, ok
}

// productFromNode walks a decoded JSON-LD value looking for a Product node,
// directly, inside a @graph list, or inside a top-level array.
func productFromNode(node any) (structuredProduct, bool) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if p, ok := productFromNode(item); ok {
				return p, true
			}
		}
	case map[string]any:
		if isProductType(v["@type"]) {
			return readProduct(v), true
		}
		if graph, ok := v["@graph"]; ok {
			return productFromNode(graph)
		}
	}
	return structuredProduct{}, false
}

func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Product")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

func readProduct(node map[string]any) structuredProduct {
	p := structuredProduct{
		name:  stringField(node, "name"),
		image: imageField(node["image"]),
	}
	offer := firstOffer(node["offers"])
	if offer == nil {
		return p
	}
	p.currency = stringField(offer, "priceCurrency")
	p.availability = stringField(offer, "availability")
	for _, key := range []string{"price", "lowPrice"} {
		switch v := offer[key].(type) {
		case float64:
			price := v
			p.price = &price
			return p
		case string:
			if value, _, ok := ParsePrice(v); ok {
				p.price = &value
				return p
			}
		}
	}
	return p
}

func firstOffer(v any) map[string]any {
	switch offer := v.(type) {
	case map[string]any:
		return offer
	case []any:
		for _, item := range offer {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func stringField(node map[string]any, key string) string {
	if s, ok := node[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func imageField(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case []any:
		for _, item := range img {
			if s := imageField(item); s != "" {
				return s
			}
		}
	case map[string]any:
		return stringField(img, "url")
	}
	return ""
}

func applyStructuredProduct(snap *watcher.ProductSnapshot, p structuredProduct) {
	snap.Title = p.name
	snap.ImageURL = p.image
	if p.price != nil {
		snap.Price = p.price
		snap.Currency = p.currency
		if snap.Currency == "" {
			snap.Currency = "USD"
		}
	}
	if p.availability != "" {
		// schema.org availability values arrive as URLs or bare tokens.
		avail := strings.ToLower(p.availability)
		switch {
		case strings.Contains(avail, "instock") || strings.Contains(avail, "limitedavailability"):
			snap.InStock = boolPtr(true)
		case strings.Contains(avail, "outofstock") || strings.Contains(avail, "soldout") || strings.Contains(avail, "discontinued"):
			snap.InStock = boolPtr(false)
		}
	}
}

var titleSelectors = []string{
	`meta[property="og:title"]`,
	`h1[itemprop="name"]`,
	`h1.product-title`,
	`h1.product-name`,
	`h1`,
	`title`,
}

var priceSelectors = []string{
	`[itemprop="price"]`,
	`meta[property="product:price:amount"]`,
	`meta[property="og:price:amount"]`,
	`.product-price`,
	`.price-current`,
	`.price`,
	`#price`,
	`span.price`,
}

var imageSelectors = []string{
	`meta[property="og:image"]`,
	`[itemprop="image"]`,
	`.product-image img`,
	`img.product-img`,
}

var sizeSelectors = []string{
	`select[name*="size" i] option`,
	`select[id*="size" i] option`,
	`[data-size]`,
	`.size-option`,
	`.swatch-size`,
}

var negativeStockPhrases = []string{
	"out of stock", "sold out", "currently unavailable", "no longer available", "notify me when available",
}

var positiveStockPhrases = []string{
	"in stock", "add to cart", "add to bag", "buy now", "available now",
}

// probeSelectors fills any fields the structured data pass left empty.
func probeSelectors(snap *watcher.ProductSnapshot, doc *goquery.Document) {
	if snap.Title == "" {
		snap.Title = firstText(doc, titleSelectors)
	}
	if snap.Price == nil {
		if raw := firstText(doc, priceSelectors); raw != "" {
			if value, currency, ok := ParsePrice(raw); ok {
				snap.Price = &value
				snap.Currency = currency
			}
		}
	}
	if snap.ImageURL == "" {
		snap.ImageURL = firstAttr(doc, imageSelectors, "content", "src")
	}
	if snap.InStock == nil {
		snap.InStock = probeStock(doc)
	}
	if len(snap.Sizes) == 0 {
		snap.Sizes = probeSizes(doc)
	}
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if content, ok := node.Attr("content"); ok && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(doc *goquery.Document, selectors []string, attrs ...string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		for _, attr := range attrs {
			if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// probeStock returns nil when neither a positive nor a negative signal is
// present: unknown must stay distinct from false.
func probeStock(doc *goquery.Document) *bool {
	if doc.Find(`.out-of-stock, .sold-out, [data-availability="out-of-stock"]`).Length() > 0 {
		return boolPtr(false)
	}
	body := strings.ToLower(doc.Find("body").Text())
	for _, phrase := range negativeStockPhrases {
		if strings.Contains(body, phrase) {
			return boolPtr(false)
		}
	}
	if doc.Find(`button[name="add"], #add-to-cart, .add-to-cart`).Length() > 0 {
		return boolPtr(true)
	}
	for _, phrase := range positiveStockPhrases {
		if strings.Contains(body, phrase) {
			return boolPtr(true)
		}
	}
	return nil
}

func probeSizes(doc *goquery.Document) []string {
	var sizes []string
	seen := make(map[string]struct{})
	for _, sel := range sizeSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if _, disabled := s.Attr("disabled"); disabled {
				return
			}
			label := strings.TrimSpace(s.Text())
			if label == "" {
				if v, ok := s.Attr("data-size"); ok {
					label = strings.TrimSpace(v)
				}
			}
			if label == "" || strings.Contains(strings.ToLower(label), "select") {
				return
			}
			if _, dup := seen[label]; dup {
				return
			}
			seen[label] = struct{}{}
			sizes = append(sizes, label)
		})
		if len(sizes) > 0 {
			return sizes
		}
	}
	return sizes
}

func boolPtr(b bool) *bool {
	return &b
}

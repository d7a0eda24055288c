// Package htmlprep shrinks rendered HTML into something a language model can
// read: noise removed, attributes whitelisted, whitespace collapsed and size
// capped. It also pulls out embedded structured data.
package htmlprep

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html"
)

// MaxBytes caps cleaned HTML handed to a model.
const MaxBytes = 120_000

var noiseSelectors = "script, style, noscript, template, iframe, svg, link, meta, head"

var keepAttrs = map[string]bool{"href": true, "src": true, "alt": true}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]{2,}`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
	blankLines  = regexp.MustCompile(`\n[ \t]+`)
)

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "div": true, "dl": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "ul": true, "li": true, "thead": true, "tbody": true, "tfoot": true,
	"tr": true, "td": true, "th": true,
}

// Prepared is the model-ready form of one HTML document.
type Prepared struct {
	// Truncated is the cleaned HTML capped at MaxBytes.
	Truncated string
	// JSONBlobs holds JSON-LD and __NEXT_DATA__ payloads found in the page.
	JSONBlobs []string
	// BaseName is a stable, content-addressed name for debug files.
	BaseName string
}

// Prepare cleans raw HTML for the given source label (usually provider and URL).
func Prepare(label, raw string) (Prepared, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Prepared{}, fmt.Errorf("parsing html: %w", err)
	}

	blobs := structuredData(doc)
	cleaned := clean(doc)

	return Prepared{
		Truncated: Truncate(cleaned, MaxBytes),
		JSONBlobs: blobs,
		BaseName:  StableName(label, raw),
	}, nil
}

// Clean returns the cleaned, untruncated form of raw.
func Clean(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	return clean(doc), nil
}

// Text flattens an HTML fragment to readable text with paragraph breaks.
func Text(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, h1, h2, h3, h4, h5, h6, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return normalizeWhitespace(doc.Text())
}

// StableName hashes a label and the first few KB of HTML into a short file name.
func StableName(label, raw string) string {
	head := raw
	if len(head) > 4096 {
		head = head[:4096]
	}
	sum := xxhash.Sum64String(label + "\x00" + head)
	return fmt.Sprintf("%s-%016x", slug(label), sum)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func clean(doc *goquery.Document) string {
	doc.Find(noiseSelectors).Remove()
	doc.Find(`img[src^="data:"]`).Remove()
	doc.Find("[hidden], [aria-hidden=true]").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	for _, n := range root.Nodes {
		stripNode(n)
	}

	out, err := root.Html()
	if err != nil {
		out = root.Text()
	}
	return normalizeWhitespace(out)
}

// stripNode removes comments, drops attributes outside the whitelist and
// pads block elements with newlines so structure survives flattening.
func stripNode(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.ElementNode:
			attrs := c.Attr[:0]
			for _, a := range c.Attr {
				if keepAttrs[a.Key] {
					attrs = append(attrs, a)
				}
			}
			c.Attr = attrs
			if c.Data == "br" {
				n.InsertBefore(&html.Node{Type: html.TextNode, Data: "\n"}, c)
				n.RemoveChild(c)
				break
			}
			if blockTags[c.Data] {
				n.InsertBefore(&html.Node{Type: html.TextNode, Data: "\n"}, c)
				if next != nil {
					n.InsertBefore(&html.Node{Type: html.TextNode, Data: "\n"}, next)
				} else {
					n.AppendChild(&html.Node{Type: html.TextNode, Data: "\n"})
				}
			}
			stripNode(c)
		}
		c = next
	}
}

func structuredData(doc *goquery.Document) []string {
	var blobs []string
	doc.Find(`script[type="application/ld+json"], script#__NEXT_DATA__`).Each(func(_ int, s *goquery.Selection) {
		txt := strings.TrimSpace(s.Text())
		if txt != "" {
			blobs = append(blobs, Truncate(txt, MaxBytes/4))
		}
	})
	return blobs
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n")
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var slugChars = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	out := strings.Trim(slugChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(out) > 60 {
		out = strings.TrimRight(out[:60], "-")
	}
	if out == "" {
		out = "page"
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

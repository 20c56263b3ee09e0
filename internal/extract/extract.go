// Package extract turns portal page snapshots into typed records. Every
// function works on an HTML string, so the rules can be exercised against
// static fixtures without a browser.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrExtraction is returned when a page lacks the structure a rule depends on.
var ErrExtraction = errors.New("extraction failed")

func parseDocument(src string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing html: %v", ErrExtraction, err)
	}
	return doc, nil
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// text returns the visible text of the selection with whitespace collapsed
// and non-breaking spaces folded into plain spaces.
func text(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(n, &b)
	}
	s := strings.ReplaceAll(b.String(), "\u00a0", " ")
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

func writeText(n *html.Node, b *strings.Builder) {
	if n == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
		if n.Data == "br" {
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, b)
	}
}

// ParsePrice strips currency symbols and thousands separators. Empty or
// unparsable input is 0.
func ParsePrice(s string) float64 {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if cleaned == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseQty strips thousands separators. "NA", empty and unparsable input is 0.
func ParseQty(s string) int {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" || strings.EqualFold(cleaned, "NA") {
		return 0
	}
	if i, err := strconv.Atoi(cleaned); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return int(f)
	}
	return 0
}

// column maps one cell position to a record field.
type column[T any] struct {
	index int
	name  string
	set   func(rec *T, v string)
}

// table is a declarative row scanner: rows matching the selector that have
// at least minCells direct td children and are not rejected by skip are
// mapped through columns.
type table[T any] struct {
	rows     string
	minCells int
	skip     func(row, cells *goquery.Selection) bool
	columns  []column[T]
}

func (t table[T]) scan(doc *goquery.Document) []T {
	var out []T
	doc.Find(t.rows).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < t.minCells {
			return
		}
		if t.skip != nil && t.skip(row, cells) {
			return
		}
		var rec T
		for _, c := range t.columns {
			c.set(&rec, text(cells.Eq(c.index)))
		}
		out = append(out, rec)
	})
	return out
}

// onclickArg returns the first capture group of re applied to the onclick
// attribute of sel.
func onclickArg(sel *goquery.Selection, re *regexp.Regexp) (string, bool) {
	onclick, ok := sel.Attr("onclick")
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(onclick)
	if m == nil {
		return "", false
	}
	return m[1], true
}

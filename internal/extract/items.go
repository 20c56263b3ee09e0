package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kalambet/bidfetch/internal/storage"
)

// headerClasses mark grid header rows and cells on the portal.
var headerClasses = []string{"tableHeaderText", "gridHeader"}

func hasHeaderClass(sel *goquery.Selection) bool {
	for _, c := range headerClasses {
		if sel.HasClass(c) {
			return true
		}
	}
	return false
}

func isHeaderRow(row, cells *goquery.Selection) bool {
	return hasHeaderClass(row) || hasHeaderClass(cells.First()) || row.ChildrenFiltered("th").Length() > 0
}

var lineItemTable = table[storage.LineItem]{
	rows:     `#tblItems tr, table[id*="tblItems"] tr`,
	minCells: 9,
	skip: func(row, cells *goquery.Selection) bool {
		return hasHeaderClass(row) || strings.Contains(text(cells.First()), "Total")
	},
	columns: []column[storage.LineItem]{
		{0, "item_number", func(it *storage.LineItem, v string) { it.ItemNumber = v }},
		{1, "description", func(it *storage.LineItem, v string) { it.Description = v }},
		{2, "color", func(it *storage.LineItem, v string) { it.Color = v }},
		{3, "ship_to", func(it *storage.LineItem, v string) { it.ShipTo = v }},
		{4, "need_by", func(it *storage.LineItem, v string) { it.NeedBy = v }},
		{5, "qty", func(it *storage.LineItem, v string) { it.Qty = ParseQty(v) }},
		{6, "bundle_qty", func(it *storage.LineItem, v string) { it.BundleQty = v }},
		{7, "unit_price", func(it *storage.LineItem, v string) { it.UnitPrice = ParsePrice(v) }},
		{8, "extension", func(it *storage.LineItem, v string) { it.Extension = ParsePrice(v) }},
	},
}

// LineItems reads the item table of a PO detail page. Rows with fewer than
// nine cells, header rows, the "Total" row and rows without an item number
// are dropped.
func LineItems(src, poNumber string) ([]storage.LineItem, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return nil, err
	}
	var items []storage.LineItem
	for _, it := range lineItemTable.scan(doc) {
		if it.ItemNumber == "" {
			continue
		}
		it.PONumber = poNumber
		items = append(items, it)
	}
	return items, nil
}

// ItemLink identifies one item detail page.
type ItemLink struct {
	ItemNumber   string `json:"item_number"`
	RequestID    string `json:"request_id"`
	ItemSuffixID string `json:"item_suffix_id"`
}

var openItemDetail = regexp.MustCompile(`openItemDetail\((\d+),\s*(\d+)\)`)

// ItemLinks lists the item detail links on a PO detail page in page order.
func ItemLinks(src string) ([]ItemLink, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return nil, err
	}
	var links []ItemLink
	doc.Find(`a[onclick*="openItemDetail"]`).Each(func(_ int, a *goquery.Selection) {
		onclick, _ := a.Attr("onclick")
		m := openItemDetail.FindStringSubmatch(onclick)
		if m == nil {
			return
		}
		links = append(links, ItemLink{
			ItemNumber:   text(a),
			RequestID:    m[1],
			ItemSuffixID: m[2],
		})
	})
	return links, nil
}

var openBrWindow = regexp.MustCompile(`MM_openBrWindow\('([^']+)'`)

// ArtworkLink returns the artwork download URL of an item detail page. A
// page without the download trigger yields ok == false.
func ArtworkLink(src string) (url string, ok bool) {
	doc, err := parseDocument(src)
	if err != nil {
		return "", false
	}
	return onclickArg(doc.Find(`a[id*="ArtworkImageDownload"]`).First(), openBrWindow)
}

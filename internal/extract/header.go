package extract

import (
	"fmt"
	"regexp"
	"strings"

	"dario.cat/mergo"
	"github.com/PuerkitoBio/goquery"

	"github.com/kalambet/bidfetch/internal/storage"
)

type labelField struct {
	selector string
	set      func(h *storage.POHeader, v string)
}

var headerLabels = []labelField{
	{"#lblStatus", func(h *storage.POHeader, v string) { h.Status = cleanStatus(v) }},
	{"#lblCompany", func(h *storage.POHeader, v string) { h.Company = v }},
	{"#lblCurrency", func(h *storage.POHeader, v string) { h.Currency = v }},
	{"#lblTerms", func(h *storage.POHeader, v string) { h.Terms = v }},
	{"#lblVendorName", func(h *storage.POHeader, v string) { h.VendorName = v }},
	{"#lblVendAddr1", func(h *storage.POHeader, v string) { h.VendorAddress1 = v }},
	{"#lblVendAddr2", func(h *storage.POHeader, v string) { h.VendorAddress2 = v }},
	{"#lblVendAddr3", func(h *storage.POHeader, v string) { h.VendorAddress3 = v }},
	{"#lblBIDName", func(h *storage.POHeader, v string) { h.ShipToName = v }},
	{"#lblBIDAddr1", func(h *storage.POHeader, v string) { h.ShipToAddress1 = v }},
	{"#lblBIDAddr2", func(h *storage.POHeader, v string) { h.ShipToAddress2 = v }},
	{"#lblBIDAddr3", func(h *storage.POHeader, v string) { h.ShipToAddress3 = v }},
	{"#lblCancelDate", func(h *storage.POHeader, v string) { h.CancelDate = v }},
	{"#lblPODate", func(h *storage.POHeader, v string) { h.PODate = v }},
	{"#lblShipBy", func(h *storage.POHeader, v string) { h.ShipBy = v }},
	{"#lblShipVia", func(h *storage.POHeader, v string) { h.ShipVia = v }},
	{"#lblOrderType", func(h *storage.POHeader, v string) { h.OrderType = v }},
	{"#lblLoc", func(h *storage.POHeader, v string) { h.Location = v }},
	{"#lblProdRep", func(h *storage.POHeader, v string) { h.ProdRep = v }},
	{"#lblTotalAmount", func(h *storage.POHeader, v string) {
		if v != "" {
			total := ParsePrice(v)
			h.TotalAmount = &total
		}
	}},
}

// headerAnchors must be present for a page to count as a PO detail page.
const headerAnchors = "#lblBidPOid, #lblStatus"

var (
	markupTags = regexp.MustCompile(`<[^>]*>`)
	starRuns   = regexp.MustCompile(`\*+`)
)

func cleanStatus(s string) string {
	s = markupTags.ReplaceAllString(s, "")
	s = starRuns.ReplaceAllString(s, "")
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

// ListRow holds the columns only the search-results grid shows.
type ListRow struct {
	PONumber   string `json:"po_number"`
	PODate     string `json:"po_date"`
	ShipBy     string `json:"ship_by"`
	Status     string `json:"status"`
	VendorName string `json:"vendor_name"`
	CancelDate string `json:"cancel_date"`
}

func (r ListRow) header() storage.POHeader {
	return storage.POHeader{
		PONumber:   r.PONumber,
		PODate:     r.PODate,
		ShipBy:     r.ShipBy,
		Status:     cleanStatus(r.Status),
		VendorName: r.VendorName,
		CancelDate: r.CancelDate,
	}
}

var listGrid = table[ListRow]{
	rows:     "table tr",
	minCells: 6,
	skip: func(row, cells *goquery.Selection) bool {
		return isHeaderRow(row, cells)
	},
	columns: []column[ListRow]{
		{0, "po_number", func(r *ListRow, v string) { r.PONumber = v }},
		{1, "po_date", func(r *ListRow, v string) { r.PODate = v }},
		{2, "ship_by", func(r *ListRow, v string) { r.ShipBy = v }},
		{3, "status", func(r *ListRow, v string) { r.Status = v }},
		{4, "vendor_name", func(r *ListRow, v string) { r.VendorName = v }},
		{5, "cancel_date", func(r *ListRow, v string) { r.CancelDate = v }},
	},
}

// FindListRow returns the search-results row for poNumber, or nil when the
// grid does not list it.
func FindListRow(src, poNumber string) (*ListRow, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return nil, err
	}
	for _, r := range listGrid.scan(doc) {
		if r.PONumber == poNumber {
			row := r
			return &row, nil
		}
	}
	return nil, nil
}

// Header reads the labeled header fields of a PO detail page. Values from
// the detail page win; empty ones are filled from row when given. The
// returned PONumber is always poNumber.
func Header(src, poNumber string, row *ListRow) (storage.POHeader, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return storage.POHeader{}, err
	}
	if doc.Find(headerAnchors).Length() == 0 {
		return storage.POHeader{}, fmt.Errorf("%w: po %s: header labels not found", ErrExtraction, poNumber)
	}

	var h storage.POHeader
	for _, f := range headerLabels {
		f.set(&h, text(doc.Find(f.selector).First()))
	}

	if row != nil {
		if err := mergo.Merge(&h, row.header()); err != nil {
			return storage.POHeader{}, fmt.Errorf("%w: po %s: merging list row: %v", ErrExtraction, poNumber, err)
		}
	}
	h.PONumber = poNumber
	return h, nil
}

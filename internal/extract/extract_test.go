package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poDetailPage = `<html><body>
<span id="lblBidPOid">1234567</span>
<span id="lblStatus"><b>***Open***</b></span>
<span id="lblCompany">Acme Apparel</span>
<span id="lblCurrency">USD</span>
<span id="lblTerms">Net 30</span>
<span id="lblVendorName"></span>
<span id="lblVendAddr1">1 Mill Rd</span>
<span id="lblBIDName">DC East</span>
<span id="lblBIDAddr1">200 Dock St</span>
<span id="lblCancelDate">3/01/26</span>
<span id="lblShipVia">UPS&nbsp;Ground</span>
<table id="tblItems">
  <tbody>
    <tr class="tableHeaderText"><td>Item</td><td>Desc</td><td>Color</td><td>Ship To</td><td>Need By</td><td>Qty</td><td>Bundle</td><td>Price</td><td>Ext</td></tr>
    <tr><td><a href="#" onclick="openItemDetail(5501, 77)">ABC-123</a></td><td>Woven label</td><td>Black</td><td>DC East</td><td>2/10/26</td><td>1,200</td><td>100</td><td>$0.045</td><td>$54.00</td></tr>
    <tr><td><a href="#" onclick="openItemDetail(5501, 78)">ABC-124-X</a></td><td>Hang tag</td><td>White</td><td>DC East</td><td>2/10/26</td><td>NA</td><td></td><td></td><td>$1,000.50</td></tr>
    <tr><td>short</td><td>row</td></tr>
    <tr><td>Total</td><td></td><td></td><td></td><td></td><td>1,200</td><td></td><td></td><td>$1,054.50</td></tr>
    <tr><td></td><td></td><td></td><td></td><td></td><td></td><td></td><td></td><td></td></tr>
  </tbody>
</table>
</body></html>`

const searchGridPage = `<html><body><table id="gvPOList">
<tr class="gridHeader"><td>PO #</td><td>PO Date</td><td>Ship By</td><td>Status</td><td>Vendor</td><td>Cancel</td></tr>
<tr><td>7654321</td><td>1/02/26</td><td>1/20/26</td><td>Closed</td><td>Other Vendor</td><td>2/01/26</td></tr>
<tr><td>1234567</td><td>1/05/26</td><td>1/25/26</td><td>*Pending*</td><td>Label Works</td><td>2/15/26</td></tr>
</table></body></html>`

func TestParsePrice(t *testing.T) {
	tests := map[string]float64{
		"$1,234.50": 1234.5,
		" 0.045 ":   0.045,
		"":          0,
		"$":         0,
		"n/a":       0,
	}
	for in, want := range tests {
		assert.InDelta(t, want, ParsePrice(in), 1e-9, "ParsePrice(%q)", in)
	}
}

func TestParseQty(t *testing.T) {
	tests := map[string]int{
		"1,200": 1200,
		"NA":    0,
		"":      0,
		" 15 ":  15,
		"12.0":  12,
		"abc":   0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseQty(in), "ParseQty(%q)", in)
	}
}

func TestLineItems(t *testing.T) {
	items, err := LineItems(poDetailPage, "1234567")
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "1234567", first.PONumber)
	assert.Equal(t, "ABC-123", first.ItemNumber)
	assert.Equal(t, "Woven label", first.Description)
	assert.Equal(t, 1200, first.Qty)
	assert.Equal(t, "100", first.BundleQty)
	assert.InDelta(t, 0.045, first.UnitPrice, 1e-9)
	assert.InDelta(t, 54.0, first.Extension, 1e-9)

	second := items[1]
	assert.Equal(t, "ABC-124-X", second.ItemNumber)
	assert.Equal(t, 0, second.Qty)
	assert.Equal(t, 0.0, second.UnitPrice)
	assert.InDelta(t, 1000.5, second.Extension, 1e-9)
}

func TestLineItemsExcludesShortAndTotalRows(t *testing.T) {
	const page = `<table id="ctl00_tblItems">
<tr><td>A-1</td><td>d</td><td>c</td><td>s</td><td>n</td><td>5</td><td>1</td><td>$1</td></tr>
<tr><td>Grand Total</td><td>d</td><td>c</td><td>s</td><td>n</td><td>5</td><td>1</td><td>$1</td><td>$5</td></tr>
<tr><td>Total</td></tr>
<tr><td>B-2</td><td>d</td><td>c</td><td>s</td><td>n</td><td>7</td><td>1</td><td>$1</td><td>$7</td></tr>
</table>`

	items, err := LineItems(page, "9")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "B-2", items[0].ItemNumber)
}

func TestHeaderMergesListRow(t *testing.T) {
	row, err := FindListRow(searchGridPage, "1234567")
	require.NoError(t, err)
	require.NotNil(t, row)

	h, err := Header(poDetailPage, "1234567", row)
	require.NoError(t, err)

	assert.Equal(t, "1234567", h.PONumber)
	assert.Equal(t, "Open", h.Status, "detail status wins when present")
	assert.Equal(t, "Label Works", h.VendorName, "empty detail vendor falls back to list row")
	assert.Equal(t, "1/05/26", h.PODate)
	assert.Equal(t, "1/25/26", h.ShipBy)
	assert.Equal(t, "3/01/26", h.CancelDate, "detail cancel date wins")
	assert.Equal(t, "UPS Ground", h.ShipVia)
	assert.Equal(t, "Acme Apparel", h.Company)
	assert.Nil(t, h.TotalAmount)
}

func TestHeaderUsesListStatusWhenDetailBlank(t *testing.T) {
	const page = `<span id="lblBidPOid">1234567</span><span id="lblStatus">***</span>`
	row := &ListRow{PONumber: "1234567", Status: "*Pending*"}

	h, err := Header(page, "1234567", row)
	require.NoError(t, err)
	assert.Equal(t, "Pending", h.Status)
}

func TestHeaderOverridesPONumber(t *testing.T) {
	const page = `<span id="lblBidPOid">WRONG</span><span id="lblStatus">Open</span>`
	h, err := Header(page, "1111", nil)
	require.NoError(t, err)
	assert.Equal(t, "1111", h.PONumber)
}

func TestHeaderMissingLabels(t *testing.T) {
	_, err := Header(`<html><body><p>Session expired</p></body></html>`, "1111", nil)
	require.ErrorIs(t, err, ErrExtraction)
}

func TestFindListRowMissing(t *testing.T) {
	row, err := FindListRow(searchGridPage, "0000000")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestItemLinks(t *testing.T) {
	links, err := ItemLinks(poDetailPage)
	require.NoError(t, err)
	assert.Equal(t, []ItemLink{
		{ItemNumber: "ABC-123", RequestID: "5501", ItemSuffixID: "77"},
		{ItemNumber: "ABC-124-X", RequestID: "5501", ItemSuffixID: "78"},
	}, links)
}

func TestArtworkLink(t *testing.T) {
	const page = `<a id="ctl00_lnkArtworkImageDownload" href="#"
		onclick="MM_openBrWindow('https://portal.test/files/art/ABC-123.pdf','art','width=600')">Download</a>`

	u, ok := ArtworkLink(page)
	require.True(t, ok)
	assert.Equal(t, "https://portal.test/files/art/ABC-123.pdf", u)

	_, ok = ArtworkLink(`<a id="lnkOther" onclick="MM_openBrWindow('x.pdf')">x</a>`)
	assert.False(t, ok, "missing trigger element is not an artwork")

	_, ok = ArtworkLink(`<a id="lnkArtworkImageDownload" onclick="alert('none')">x</a>`)
	assert.False(t, ok, "trigger without the call pattern is not an artwork")
}

const messagesFrame = `<table>
<tr><td class="tableHeaderText">&nbsp;</td><td></td><td></td><td>Ref #</td><td>From</td><td>Received</td><td>Subject</td><td>Comment</td></tr>
<tr><td><img></td><td><img></td><td><img></td>
  <td><a href="#" onclick="window.open('CommentDetail.aspx?comment_id=901&amp;po=1','d')">R-1</a></td>
  <td>Buyer A</td><td>1/26/26 22:25</td><td>Proof approved</td><td>ok to print</td></tr>
<tr><td><img></td><td><img></td><td><img></td>
  <td><a href="CommentDetail.aspx?comment_id=902">R-2</a></td>
  <td>Buyer B</td><td>1/27/26 09:00</td><td>Change</td><td>new color</td></tr>
<tr><td>too</td><td>short</td></tr>
</table>`

func TestMessagesDateFilter(t *testing.T) {
	msgs, err := Messages(messagesFrame, DatePrefix("1/26/26"), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "R-1", m.RefNumber)
	assert.Equal(t, "Buyer A", m.Author)
	assert.Equal(t, "1/26/26 22:25", m.ReceivedDate)
	assert.Equal(t, "Proof approved", m.Subject)
	assert.Equal(t, "ok to print", m.Comment)
	assert.Equal(t, "CommentDetail.aspx?comment_id=901&po=1", m.MessageLink)
	assert.Equal(t, "901", m.CommentID)
}

func TestMessagesNoFilterAndLimit(t *testing.T) {
	msgs, err := Messages(messagesFrame, nil, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "R-1", msgs[0].RefNumber)

	all, err := Messages(messagesFrame, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "902", all[1].CommentID)
}

func TestDatePrefixBoundary(t *testing.T) {
	keep := DatePrefix("1/2/26")
	assert.True(t, keep("1/2/26 08:00"))
	assert.True(t, keep("1/2/26"))
	assert.False(t, keep("1/26/26 22:25"))
	assert.False(t, keep("11/2/26 08:00"))
	assert.False(t, DatePrefix("")("1/2/26"))
}

func TestDatePrefixAgreesWithPlainPrefixOnPortalDates(t *testing.T) {
	keep := DatePrefix("3/7/25")
	for _, d := range []string{"3/7/25 09:14", "3/7/25 23:59", " 3/7/25 00:00 "} {
		assert.True(t, keep(d), d)
	}
	// A plain prefix would accept this row.
	assert.False(t, DatePrefix("1/2")("1/26/26 22:25"))
}

func TestDateToken(t *testing.T) {
	assert.Equal(t, "1/26/26", DateToken(time.Date(2026, time.January, 26, 22, 25, 0, 0, time.UTC)))
	assert.Equal(t, "12/5/09", DateToken(time.Date(2009, time.December, 5, 0, 0, 0, 0, time.UTC)))
}

func TestMessageDetail(t *testing.T) {
	got, err := MessageDetail(`<html><body> <div id="msg"><b>Hello</b> there</div> </body></html>`)
	require.NoError(t, err)
	assert.Equal(t, `<div id="msg"><b>Hello</b> there</div>`, got)
}

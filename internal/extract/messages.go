package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kalambet/bidfetch/internal/storage"
)

// DefaultMessageLimit caps how many message rows are returned per scan.
const DefaultMessageLimit = 10

// DateFilter decides whether a message row is kept, given its received date.
type DateFilter func(receivedDate string) bool

// DatePrefix keeps rows whose received date starts with token followed by a
// space or the end of the text. This is stricter than a plain string prefix:
// "1/2/26" matches "1/2/26 08:00" but not "1/26/26 22:25", which a bare
// strings.HasPrefix would accept. Every date the portal prints has a time
// after a space, so any row a plain prefix keeps for a full M/D/YY token is
// kept here too.
func DatePrefix(token string) DateFilter {
	token = strings.TrimSpace(token)
	return func(receivedDate string) bool {
		d := strings.TrimSpace(receivedDate)
		if token == "" || !strings.HasPrefix(d, token) {
			return false
		}
		rest := d[len(token):]
		return rest == "" || rest[0] == ' '
	}
}

// DateToken formats t the way the portal prints received dates: M/D/YY.
func DateToken(t time.Time) string {
	return fmt.Sprintf("%d/%d/%02d", int(t.Month()), t.Day(), t.Year()%100)
}

// The first three cells of a message row are icons.
var messageTable = table[storage.Message]{
	rows:     "tr",
	minCells: 8,
	skip: func(row, cells *goquery.Selection) bool {
		return hasHeaderClass(cells.First())
	},
	columns: []column[storage.Message]{
		{3, "ref_number", func(m *storage.Message, v string) { m.RefNumber = v }},
		{4, "author", func(m *storage.Message, v string) { m.Author = v }},
		{5, "received_date", func(m *storage.Message, v string) { m.ReceivedDate = v }},
		{6, "subject", func(m *storage.Message, v string) { m.Subject = v }},
		{7, "comment", func(m *storage.Message, v string) { m.Comment = v }},
	},
}

var popupURL = regexp.MustCompile(`'([^']+\.aspx[^']*)'`)

// Messages scans a message list frame. Rows failing keep are dropped and at
// most limit rows are returned; limit <= 0 means DefaultMessageLimit.
func Messages(src string, keep DateFilter, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	doc, err := parseDocument(src)
	if err != nil {
		return nil, err
	}

	links := make(map[string]string)
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < messageTable.minCells {
			return
		}
		ref := text(cells.Eq(3))
		if link := anchorLink(cells.Eq(3).Find("a").First()); link != "" {
			links[ref] = link
		}
	})

	var out []storage.Message
	for _, m := range messageTable.scan(doc) {
		if m.RefNumber == "" {
			continue
		}
		if keep != nil && !keep(m.ReceivedDate) {
			continue
		}
		m.MessageLink = links[m.RefNumber]
		m.CommentID = CommentID(m.MessageLink)
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// anchorLink returns the href of a, or the popup URL embedded in its onclick
// handler when the href is a placeholder.
func anchorLink(a *goquery.Selection) string {
	if a.Length() == 0 {
		return ""
	}
	href, _ := a.Attr("href")
	href = strings.TrimSpace(href)
	if href != "" && href != "#" && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return href
	}
	if v, ok := onclickArg(a, popupURL); ok {
		return v
	}
	return ""
}

// CommentID returns the comment_id query parameter of a message link.
func CommentID(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("comment_id")
}

// MessageDetail returns the inner HTML of a message detail popup body.
func MessageDetail(src string) (string, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return "", err
	}
	body, err := doc.Find("body").First().Html()
	if err != nil {
		return "", fmt.Errorf("%w: rendering message detail: %v", ErrExtraction, err)
	}
	return strings.TrimSpace(body), nil
}

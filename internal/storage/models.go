package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PersistenceError reports a failed write together with the record that was
// being written.
type PersistenceError struct {
	Op      string
	Payload string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v (payload: %s)", e.Op, e.Err, e.Payload)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, payload any, err error) error {
	b, merr := json.Marshal(payload)
	if merr != nil {
		b = []byte(fmt.Sprintf("%+v", payload))
	}
	return &PersistenceError{Op: op, Payload: string(b), Err: err}
}

// POHeader is one purchase order, keyed by PONumber.
type POHeader struct {
	PONumber       string    `json:"po_number"`
	Status         string    `json:"status"`
	Company        string    `json:"company"`
	Currency       string    `json:"currency"`
	Terms          string    `json:"terms"`
	VendorName     string    `json:"vendor_name"`
	VendorAddress1 string    `json:"vendor_address1"`
	VendorAddress2 string    `json:"vendor_address2"`
	VendorAddress3 string    `json:"vendor_address3"`
	ShipToName     string    `json:"ship_to_name"`
	ShipToAddress1 string    `json:"ship_to_address1"`
	ShipToAddress2 string    `json:"ship_to_address2"`
	ShipToAddress3 string    `json:"ship_to_address3"`
	CancelDate     string    `json:"cancel_date"`
	TotalAmount    *float64  `json:"total_amount"`
	PODate         string    `json:"po_date"`
	ShipBy         string    `json:"ship_by"`
	ShipVia        string    `json:"ship_via"`
	OrderType      string    `json:"order_type"`
	Location       string    `json:"loc"`
	ProdRep        string    `json:"prod_rep"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LineItem is one row of a PO's item table. Rows are appended on every scrape.
type LineItem struct {
	ID          int64     `json:"id"`
	PONumber    string    `json:"po_number"`
	ItemNumber  string    `json:"item_number"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	ShipTo      string    `json:"ship_to"`
	NeedBy      string    `json:"need_by"`
	Qty         int       `json:"qty"`
	BundleQty   string    `json:"bundle_qty"`
	UnitPrice   float64   `json:"unit_price"`
	Extension   float64   `json:"extension"`
	CreatedAt   time.Time `json:"created_at"`
}

// DownloadHistory records one artwork download run for a PO.
type DownloadHistory struct {
	ID              int64     `json:"id"`
	PONumber        string    `json:"po_number"`
	FilesDownloaded int       `json:"files_downloaded"`
	TotalSize       int64     `json:"total_size"`
	Status          string    `json:"status"`
	DownloadedAt    time.Time `json:"downloaded_at"`
}

// Message is a portal message, upserted by RefNumber.
type Message struct {
	ID           int64     `json:"id"`
	RefNumber    string    `json:"ref_number"`
	Author       string    `json:"author"`
	ReceivedDate string    `json:"received_date"`
	Subject      string    `json:"subject"`
	Comment      string    `json:"comment"`
	FullDetails  string    `json:"full_details"`
	MessageLink  string    `json:"message_link"`
	CommentID    string    `json:"comment_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ItemIndexEntry is a distinct item number split into prefix and suffix.
type ItemIndexEntry struct {
	ID          int64     `json:"id"`
	Item1       string    `json:"item_1"`
	Suffix      *string   `json:"suffix"`
	InternalSeq *string   `json:"internal_seq"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemNumber joins prefix and suffix back into the scraped form.
func (e ItemIndexEntry) ItemNumber() string {
	if e.Suffix == nil {
		return e.Item1
	}
	return e.Item1 + "-" + *e.Suffix
}

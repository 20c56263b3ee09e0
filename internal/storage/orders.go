package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const poHeaderColumns = `po_number, COALESCE(status, ''), COALESCE(company, ''), COALESCE(currency, ''), COALESCE(terms, ''),
	COALESCE(vendor_name, ''), COALESCE(vendor_address1, ''), COALESCE(vendor_address2, ''), COALESCE(vendor_address3, ''),
	COALESCE(ship_to_name, ''), COALESCE(ship_to_address1, ''), COALESCE(ship_to_address2, ''), COALESCE(ship_to_address3, ''),
	COALESCE(cancel_date, ''), total_amount, COALESCE(po_date, ''), COALESCE(ship_by, ''), COALESCE(ship_via, ''),
	COALESCE(order_type, ''), COALESCE(loc, ''), COALESCE(prod_rep, ''), COALESCE(created_at, ''), COALESCE(updated_at, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPOHeader(row rowScanner) (POHeader, error) {
	var h POHeader
	var createdAt, updatedAt string
	err := row.Scan(&h.PONumber, &h.Status, &h.Company, &h.Currency, &h.Terms,
		&h.VendorName, &h.VendorAddress1, &h.VendorAddress2, &h.VendorAddress3,
		&h.ShipToName, &h.ShipToAddress1, &h.ShipToAddress2, &h.ShipToAddress3,
		&h.CancelDate, &h.TotalAmount, &h.PODate, &h.ShipBy, &h.ShipVia,
		&h.OrderType, &h.Location, &h.ProdRep, &createdAt, &updatedAt)
	if err != nil {
		return POHeader{}, err
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return POHeader{}, fmt.Errorf("parsing created_at for %s: %w", h.PONumber, err)
	}
	if h.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return POHeader{}, fmt.Errorf("parsing updated_at for %s: %w", h.PONumber, err)
	}
	return h, nil
}

// --- PO Headers ---

// SavePOHeader inserts the header or replaces every scraped field of the
// existing row for the same PO number. created_at is kept from the first save.
func (s *Store) SavePOHeader(h POHeader) error {
	now := formatTime(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO po_headers (po_number, status, company, currency, terms,
			vendor_name, vendor_address1, vendor_address2, vendor_address3,
			ship_to_name, ship_to_address1, ship_to_address2, ship_to_address3,
			cancel_date, total_amount, po_date, ship_by, ship_via, order_type, loc, prod_rep,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(po_number) DO UPDATE SET
			status = excluded.status, company = excluded.company, currency = excluded.currency,
			terms = excluded.terms, vendor_name = excluded.vendor_name,
			vendor_address1 = excluded.vendor_address1, vendor_address2 = excluded.vendor_address2,
			vendor_address3 = excluded.vendor_address3, ship_to_name = excluded.ship_to_name,
			ship_to_address1 = excluded.ship_to_address1, ship_to_address2 = excluded.ship_to_address2,
			ship_to_address3 = excluded.ship_to_address3, cancel_date = excluded.cancel_date,
			total_amount = excluded.total_amount, po_date = excluded.po_date, ship_by = excluded.ship_by,
			ship_via = excluded.ship_via, order_type = excluded.order_type, loc = excluded.loc,
			prod_rep = excluded.prod_rep, updated_at = excluded.updated_at`,
		h.PONumber, h.Status, h.Company, h.Currency, h.Terms,
		h.VendorName, h.VendorAddress1, h.VendorAddress2, h.VendorAddress3,
		h.ShipToName, h.ShipToAddress1, h.ShipToAddress2, h.ShipToAddress3,
		h.CancelDate, h.TotalAmount, h.PODate, h.ShipBy, h.ShipVia, h.OrderType, h.Location, h.ProdRep,
		now, now,
	)
	if err != nil {
		return persistErr("save po header", h, err)
	}
	return nil
}

func (s *Store) GetPOHeader(poNumber string) (POHeader, error) {
	h, err := scanPOHeader(s.db.QueryRow(`SELECT `+poHeaderColumns+` FROM po_headers WHERE po_number = ?`, poNumber))
	if err == sql.ErrNoRows {
		return POHeader{}, ErrNotFound
	}
	return h, err
}

// ListPOHeaders returns headers ordered by most recent update. A limit of 0
// or less returns every row.
func (s *Store) ListPOHeaders(limit, offset int) ([]POHeader, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+poHeaderColumns+` FROM po_headers
		ORDER BY updated_at DESC, po_number ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectPOHeaders(rows)
}

func (s *Store) CountPOHeaders() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM po_headers`).Scan(&n)
	return n, err
}

// SearchPOHeaders matches term as a substring of the PO number, vendor,
// company or status.
func (s *Store) SearchPOHeaders(term string, limit int) ([]POHeader, error) {
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + escapeLike(term) + "%"
	rows, err := s.db.Query(`SELECT `+poHeaderColumns+` FROM po_headers
		WHERE po_number LIKE ? ESCAPE '\' OR vendor_name LIKE ? ESCAPE '\'
			OR company LIKE ? ESCAPE '\' OR status LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, po_number ASC LIMIT ?`,
		pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	return collectPOHeaders(rows)
}

func collectPOHeaders(rows *sql.Rows) ([]POHeader, error) {
	defer rows.Close()
	var results []POHeader
	for rows.Next() {
		h, err := scanPOHeader(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// DeletePO removes the header together with its line items and download
// history. Returns ErrNotFound when nothing was stored for the PO.
func (s *Store) DeletePO(poNumber string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, q := range []string{
		`DELETE FROM po_items WHERE po_number = ?`,
		`DELETE FROM download_history WHERE po_number = ?`,
		`DELETE FROM po_headers WHERE po_number = ?`,
	} {
		res, err := tx.Exec(q, poNumber)
		if err != nil {
			return fmt.Errorf("deleting po %s: %w", poNumber, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += n
	}
	if total == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// DeleteAllPOs clears headers, line items and download history and returns
// the number of headers removed.
func (s *Store) DeleteAllPOs() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM po_items`); err != nil {
		return 0, fmt.Errorf("deleting line items: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM download_history`); err != nil {
		return 0, fmt.Errorf("deleting download history: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM po_headers`)
	if err != nil {
		return 0, fmt.Errorf("deleting headers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// --- Line Items ---

// AddLineItems appends items. Each row is a separate statement, so a failure
// part way leaves the earlier rows in place.
func (s *Store) AddLineItems(items []LineItem) error {
	now := formatTime(time.Now())
	for _, it := range items {
		_, err := s.db.Exec(`
			INSERT INTO po_items (po_number, item_number, description, color, ship_to, need_by,
				qty, bundle_qty, unit_price, extension, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.PONumber, it.ItemNumber, it.Description, it.Color, it.ShipTo, it.NeedBy,
			it.Qty, it.BundleQty, it.UnitPrice, it.Extension, now,
		)
		if err != nil {
			return persistErr("save line item", it, err)
		}
	}
	return nil
}

func (s *Store) GetLineItems(poNumber string) ([]LineItem, error) {
	rows, err := s.db.Query(`
		SELECT id, po_number, COALESCE(item_number, ''), COALESCE(description, ''), COALESCE(color, ''),
			COALESCE(ship_to, ''), COALESCE(need_by, ''), COALESCE(qty, 0), COALESCE(bundle_qty, ''),
			COALESCE(unit_price, 0), COALESCE(extension, 0), COALESCE(created_at, '')
		FROM po_items WHERE po_number = ? ORDER BY id ASC`, poNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LineItem
	for rows.Next() {
		var it LineItem
		var createdAt string
		if err := rows.Scan(&it.ID, &it.PONumber, &it.ItemNumber, &it.Description, &it.Color,
			&it.ShipTo, &it.NeedBy, &it.Qty, &it.BundleQty, &it.UnitPrice, &it.Extension, &createdAt); err != nil {
			return nil, err
		}
		if it.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for item %d: %w", it.ID, err)
		}
		results = append(results, it)
	}
	return results, rows.Err()
}

// DistinctItemNumbers returns every non-empty item number found in po_items.
func (s *Store) DistinctItemNumbers() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT item_number FROM po_items
		WHERE item_number IS NOT NULL AND item_number != '' ORDER BY item_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Download History ---

func (s *Store) AddDownloadHistory(h DownloadHistory) error {
	at := h.DownloadedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO download_history (po_number, files_downloaded, total_size, download_date, status)
		VALUES (?, ?, ?, ?, ?)`,
		h.PONumber, h.FilesDownloaded, h.TotalSize, formatTime(at), h.Status,
	)
	if err != nil {
		return persistErr("save download history", h, err)
	}
	return nil
}

func (s *Store) GetDownloadHistory(poNumber string) ([]DownloadHistory, error) {
	rows, err := s.db.Query(`
		SELECT id, po_number, COALESCE(files_downloaded, 0), COALESCE(total_size, 0),
			COALESCE(status, ''), COALESCE(download_date, '')
		FROM download_history WHERE po_number = ? ORDER BY id DESC`, poNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DownloadHistory
	for rows.Next() {
		var h DownloadHistory
		var at string
		if err := rows.Scan(&h.ID, &h.PONumber, &h.FilesDownloaded, &h.TotalSize, &h.Status, &at); err != nil {
			return nil, err
		}
		if h.DownloadedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parsing download_date for %d: %w", h.ID, err)
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

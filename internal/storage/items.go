package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SplitItemNumber splits on the first hyphen. Everything after it, further
// hyphens included, is the suffix. No hyphen, or nothing after it, means a
// nil suffix.
func SplitItemNumber(itemNumber string) (string, *string) {
	prefix, suffix, found := strings.Cut(itemNumber, "-")
	if !found || suffix == "" {
		return prefix, nil
	}
	return prefix, &suffix
}

// RegisterItemNumber adds the item number to the index unless the same
// prefix/suffix pair is already present. Reports whether a row was inserted.
func (s *Store) RegisterItemNumber(itemNumber string) (bool, error) {
	itemNumber = strings.TrimSpace(itemNumber)
	if itemNumber == "" {
		return false, nil
	}
	prefix, suffix := SplitItemNumber(itemNumber)
	res, err := s.db.Exec(`INSERT OR IGNORE INTO items (item_1, suffix, created_at) VALUES (?, ?, ?)`,
		prefix, suffix, formatTime(time.Now()))
	if err != nil {
		return false, persistErr("register item number", map[string]any{"item_1": prefix, "suffix": suffix}, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanItemIndexEntry(row rowScanner) (ItemIndexEntry, error) {
	var e ItemIndexEntry
	var createdAt string
	if err := row.Scan(&e.ID, &e.Item1, &e.Suffix, &e.InternalSeq, &createdAt); err != nil {
		return ItemIndexEntry{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return ItemIndexEntry{}, fmt.Errorf("parsing created_at for item %d: %w", e.ID, err)
	}
	e.CreatedAt = t
	return e, nil
}

func (s *Store) ListItemIndex(limit, offset int) ([]ItemIndexEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT id, item_1, suffix, internal_seq, COALESCE(created_at, '')
		FROM items ORDER BY id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectItemIndex(rows)
}

func (s *Store) CountItemIndex() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

// ItemsWithoutSeq returns entries that have no internal sequence yet, oldest first.
func (s *Store) ItemsWithoutSeq(limit int) ([]ItemIndexEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT id, item_1, suffix, internal_seq, COALESCE(created_at, '')
		FROM items WHERE internal_seq IS NULL OR internal_seq = '' ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectItemIndex(rows)
}

func collectItemIndex(rows *sql.Rows) ([]ItemIndexEntry, error) {
	defer rows.Close()
	var results []ItemIndexEntry
	for rows.Next() {
		e, err := scanItemIndexEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// MaxInternalSeq returns the highest numeric part of assigned sequences, or 0.
func (s *Store) MaxInternalSeq() (int, error) {
	var v sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(CAST(SUBSTR(internal_seq, 5) AS INTEGER)) FROM items
		WHERE internal_seq LIKE 'ITEM%'`).Scan(&v)
	if err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// SetInternalSeq assigns seq to the entry. An entry that already has a
// sequence is left alone and ErrNotFound is returned.
func (s *Store) SetInternalSeq(id int64, seq string) error {
	res, err := s.db.Exec(`UPDATE items SET internal_seq = ?
		WHERE id = ? AND (internal_seq IS NULL OR internal_seq = '')`, seq, id)
	if err != nil {
		return persistErr("set internal seq", map[string]any{"id": id, "internal_seq": seq}, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

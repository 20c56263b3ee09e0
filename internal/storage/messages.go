package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `id, COALESCE(ref_number, ''), COALESCE(author, ''), COALESCE(received_date, ''),
	COALESCE(subject, ''), COALESCE(comment, ''), COALESCE(full_details, ''), COALESCE(message_link, ''),
	COALESCE(comment_id, ''), COALESCE(created_at, ''), COALESCE(updated_at, '')`

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.RefNumber, &m.Author, &m.ReceivedDate, &m.Subject, &m.Comment,
		&m.FullDetails, &m.MessageLink, &m.CommentID, &createdAt, &updatedAt)
	if err != nil {
		return Message{}, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return Message{}, fmt.Errorf("parsing created_at for message %d: %w", m.ID, err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Message{}, fmt.Errorf("parsing updated_at for message %d: %w", m.ID, err)
	}
	return m, nil
}

// SaveMessage inserts the message or updates the row with the same ref number.
func (s *Store) SaveMessage(m Message) error {
	now := formatTime(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO messages (ref_number, author, received_date, subject, comment, full_details,
			message_link, comment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref_number) DO UPDATE SET
			author = excluded.author, received_date = excluded.received_date,
			subject = excluded.subject, comment = excluded.comment,
			full_details = excluded.full_details, message_link = excluded.message_link,
			comment_id = excluded.comment_id, updated_at = excluded.updated_at`,
		m.RefNumber, m.Author, m.ReceivedDate, m.Subject, m.Comment, m.FullDetails,
		m.MessageLink, m.CommentID, now, now,
	)
	if err != nil {
		return persistErr("save message", m, err)
	}
	return nil
}

func (s *Store) GetMessage(id int64) (Message, error) {
	m, err := scanMessage(s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	return m, err
}

// ListMessages returns messages newest first. A limit of 0 or less returns all.
func (s *Store) ListMessages(limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+messageColumns+` FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *Store) DeleteMessage(id int64) error {
	res, err := s.db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
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

func (s *Store) DeleteAllMessages() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

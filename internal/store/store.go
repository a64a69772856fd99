package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/wolethescientist/email-engine/pkg/types"
)

// Store is the durable local record of messages this system created. It is
// the fallback source of truth for the Sent and Drafts folders when the live
// server cannot serve them.
type Store struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// Open opens (or creates) the sqlite database at dbPath, enables WAL mode
// and foreign keys, and applies the schema.
func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("Message store initialized")
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type messageRow struct {
	ID           int64     `db:"id"`
	Account      string    `db:"account"`
	Folder       string    `db:"folder"`
	Subject      string    `db:"subject"`
	Body         string    `db:"body"`
	FromAddress  string    `db:"from_address"`
	ToAddresses  string    `db:"to_addresses"`
	CcAddresses  string    `db:"cc_addresses"`
	BccAddresses string    `db:"bcc_addresses"`
	IsRead       bool      `db:"is_read"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type attachmentRow struct {
	ID          int64          `db:"id"`
	MessageID   int64          `db:"message_id"`
	Filename    string         `db:"filename"`
	ContentType sql.NullString `db:"content_type"`
	Content     []byte         `db:"content"`
}

func marshalAddresses(addrs []string) string {
	if len(addrs) == 0 {
		return "[]"
	}
	b, err := json.Marshal(addrs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalAddresses(s string) []string {
	var addrs []string
	if err := json.Unmarshal([]byte(s), &addrs); err != nil {
		return []string{}
	}
	if addrs == nil {
		return []string{}
	}
	return addrs
}

func (r *messageRow) toRecord() *types.Record {
	return &types.Record{
		ID:           r.ID,
		Account:      r.Account,
		Folder:       types.LogicalFolder(r.Folder),
		Subject:      r.Subject,
		Body:         r.Body,
		FromAddress:  r.FromAddress,
		ToAddresses:  unmarshalAddresses(r.ToAddresses),
		CcAddresses:  unmarshalAddresses(r.CcAddresses),
		BccAddresses: unmarshalAddresses(r.BccAddresses),
		IsRead:       r.IsRead,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// create persists a message and its attachments in one transaction.
func (s *Store) create(account string, folder types.LogicalFolder, payload *types.DraftPayload, from string, isRead bool) (*types.Record, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		INSERT INTO messages (account, folder, subject, body, from_address, to_addresses, cc_addresses, bcc_addresses, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account, string(folder), payload.Subject, payload.Body, from,
		marshalAddresses(payload.To), marshalAddresses(payload.Cc), marshalAddresses(payload.Bcc), isRead,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get message id: %w", err)
	}

	for _, att := range payload.Attachments {
		if _, err := tx.Exec(`
			INSERT INTO attachments (message_id, filename, content_type, content)
			VALUES (?, ?, ?, ?)`,
			id, att.Filename, att.ContentType, att.Content,
		); err != nil {
			return nil, fmt.Errorf("failed to insert attachment %s: %w", att.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return s.GetByID(account, id)
}

// CreateDraft persists a draft message for the account.
func (s *Store) CreateDraft(account string, payload *types.DraftPayload, from string) (*types.Record, error) {
	return s.create(account, types.FolderDrafts, payload, from, true)
}

// CreateSent persists a sent copy for the account. This is the unconditional
// durability guarantee behind every successful send.
func (s *Store) CreateSent(account string, payload *types.DraftPayload, from string) (*types.Record, error) {
	return s.create(account, types.FolderSent, payload, from, true)
}

// GetByID returns the record with the given id, scoped to the account, or
// nil when no such record exists.
func (s *Store) GetByID(account string, id int64) (*types.Record, error) {
	var row messageRow
	err := s.db.Get(&row, "SELECT * FROM messages WHERE id = ? AND account = ?", id, account)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	rec := row.toRecord()

	var atts []attachmentRow
	if err := s.db.Select(&atts, "SELECT * FROM attachments WHERE message_id = ? ORDER BY id", id); err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	for _, a := range atts {
		rec.Attachments = append(rec.Attachments, types.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType.String,
			Content:     a.Content,
		})
	}

	return rec, nil
}

// ListByFolder returns one page of the account's records in the given
// logical folder, newest first, plus the total count.
func (s *Store) ListByFolder(account string, folder types.LogicalFolder, page, size int) (int, []*types.Record, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}

	var total int
	err := s.db.Get(&total, "SELECT COUNT(*) FROM messages WHERE account = ? AND folder = ?", account, string(folder))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count messages: %w", err)
	}

	var rows []messageRow
	err = s.db.Select(&rows, `
		SELECT * FROM messages WHERE account = ? AND folder = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		account, string(folder), size, (page-1)*size,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list messages: %w", err)
	}

	records := make([]*types.Record, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return total, records, nil
}

// MoveFolder moves the record to another logical folder (e.g. Trash). It
// returns the updated record, or nil when the record does not exist or
// belongs to another account.
func (s *Store) MoveFolder(account string, id int64, folder types.LogicalFolder) (*types.Record, error) {
	res, err := s.db.Exec(`
		UPDATE messages SET folder = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND account = ?`,
		string(folder), id, account,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to move message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check move result: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(account, id)
}

// SetReadFlag updates the record's read flag. It returns the updated record,
// or nil when the record does not exist or belongs to another account.
func (s *Store) SetReadFlag(account string, id int64, isRead bool) (*types.Record, error) {
	res, err := s.db.Exec(`
		UPDATE messages SET is_read = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND account = ?`,
		isRead, id, account,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set read flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(account, id)
}

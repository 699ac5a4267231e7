package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mikey/support-mailer/internal/core"
	"go.uber.org/zap"
)

// Supported SQL drivers.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// SQLStore persists pipeline state in a relational database. The same code
// serves SQLite and MySQL; only the DDL differs per driver.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// NewSQLStore opens the database, creates missing tables and seeds the
// default category when the catalog is empty.
func NewSQLStore(driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite allows one writer; a single pooled connection also keeps
		// :memory: databases coherent.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, driver: driver, logger: logger}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.seedDefaults(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range schemaFor(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// seedDefaults guarantees a default category and a matching template exist so
// the classification chain always has a terminal stage.
func (s *SQLStore) seedDefaults(ctx context.Context) error {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM categories"); err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (name, description, keywords, is_default, priority) VALUES (?, ?, ?, ?, ?)",
		"Other", "Inquiries that fit no specific category", "", true, 0)
	if err != nil {
		return fmt.Errorf("failed to seed default category: %w", err)
	}
	categoryID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read seeded category id: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO templates (category_id, name, content, variables) VALUES (?, ?, ?, ?)",
		categoryID,
		"General acknowledgment",
		"Dear {Customer Name},\n\nThank you for contacting {Company Name}. We have received your message and a member of our team will get back to you shortly.\n\nBest regards,\n{Company Name} Support",
		"")
	if err != nil {
		return fmt.Errorf("failed to seed default template: %w", err)
	}

	s.logger.Info("Seeded default category and template")
	return nil
}

func (s *SQLStore) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE `key` = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	var stmt string
	switch s.driver {
	case DriverMySQL:
		stmt = "INSERT INTO settings (`key`, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)"
	default:
		stmt = "INSERT INTO settings (`key`, value) VALUES (?, ?) ON CONFLICT(`key`) DO UPDATE SET value = excluded.value"
	}
	if _, err := s.db.ExecContext(ctx, stmt, key, value); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// CurrentAccount returns the most recently updated mailbox account.
func (s *SQLStore) CurrentAccount(ctx context.Context) (*core.MailAccount, error) {
	var account core.MailAccount
	err := s.db.GetContext(ctx, &account,
		"SELECT * FROM mail_accounts ORDER BY updated_at DESC, id DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mail account: %w", err)
	}
	return &account, nil
}

// SaveAccount inserts or refreshes the mailbox account for an email address.
func (s *SQLStore) SaveAccount(ctx context.Context, account *core.MailAccount) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE mail_accounts SET
			imap_host = :imap_host, imap_port = :imap_port,
			smtp_host = :smtp_host, smtp_port = :smtp_port,
			username = :username, password = :password,
			use_ssl = :use_ssl, updated_at = CURRENT_TIMESTAMP
		WHERE email = :email`, account)
	if err != nil {
		return fmt.Errorf("failed to update mail account: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO mail_accounts (email, imap_host, imap_port, smtp_host, smtp_port, username, password, use_ssl)
		VALUES (:email, :imap_host, :imap_port, :smtp_host, :smtp_port, :username, :password, :use_ssl)`,
		account)
	if err != nil {
		return fmt.Errorf("failed to insert mail account: %w", err)
	}
	return nil
}

// ListCategories returns all categories ordered by priority descending. That
// order also resolves keyword-score ties downstream.
func (s *SQLStore) ListCategories(ctx context.Context) ([]core.Category, error) {
	var categories []core.Category
	err := s.db.SelectContext(ctx, &categories,
		"SELECT * FROM categories ORDER BY priority DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// LatestTemplateByCategory returns the newest template bound to the category,
// or nil when none exists.
func (s *SQLStore) LatestTemplateByCategory(ctx context.Context, categoryID int64) (*core.Template, error) {
	var tmpl core.Template
	err := s.db.GetContext(ctx, &tmpl,
		"SELECT * FROM templates WHERE category_id = ? ORDER BY id DESC LIMIT 1", categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template for category %d: %w", categoryID, err)
	}
	return &tmpl, nil
}

func (s *SQLStore) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM emails WHERE message_id = ?", messageID)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return count > 0, nil
}

// InsertMessage stores a decoded message. The message_id unique constraint
// makes ingestion idempotent: a duplicate insert is a no-op that returns the
// already-stored row's id.
func (s *SQLStore) InsertMessage(ctx context.Context, msg *core.InboundMessage) (int64, error) {
	var stmt string
	switch s.driver {
	case DriverMySQL:
		stmt = `INSERT IGNORE INTO emails
			(message_id, sender, subject, body_text, body_html, received_at, language, translation, status)
			VALUES (:message_id, :sender, :subject, :body_text, :body_html, :received_at, :language, :translation, :status)`
	default:
		stmt = `INSERT OR IGNORE INTO emails
			(message_id, sender, subject, body_text, body_html, received_at, language, translation, status)
			VALUES (:message_id, :sender, :subject, :body_text, :body_html, :received_at, :language, :translation, :status)`
	}

	if msg.Status == "" {
		msg.Status = core.StatusPending
	}
	res, err := s.db.NamedExecContext(ctx, stmt, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Duplicate message_id: hand back the existing row.
		var id int64
		if err := s.db.GetContext(ctx, &id, "SELECT id FROM emails WHERE message_id = ?", msg.MessageID); err != nil {
			return 0, fmt.Errorf("failed to resolve duplicate message id: %w", err)
		}
		s.logger.Debug("Skipped duplicate message", zap.String("message_id", msg.MessageID))
		return id, nil
	}
	return res.LastInsertId()
}

func (s *SQLStore) GetMessage(ctx context.Context, id int64) (*core.InboundMessage, error) {
	var msg core.InboundMessage
	err := s.db.GetContext(ctx, &msg, "SELECT * FROM emails WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %d: %w", id, err)
	}
	return &msg, nil
}

// ListMessages returns messages newest-first, optionally filtered by status.
func (s *SQLStore) ListMessages(ctx context.Context, status string) ([]core.InboundMessage, error) {
	var messages []core.InboundMessage
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &messages,
			"SELECT * FROM emails ORDER BY received_at DESC, id DESC")
	} else {
		err = s.db.SelectContext(ctx, &messages,
			"SELECT * FROM emails WHERE status = ? ORDER BY received_at DESC, id DESC", status)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (s *SQLStore) UpdateClassification(ctx context.Context, id int64, categoryID int64, confidence float64, draft *string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE emails SET category_id = ?, confidence = ?, draft_reply = ? WHERE id = ?",
		categoryID, confidence, draft, id)
	if err != nil {
		return fmt.Errorf("failed to update classification for message %d: %w", id, err)
	}
	return nil
}

func (s *SQLStore) UpdateSent(ctx context.Context, id int64, finalReply string, categoryID *int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE emails SET status = ?, final_reply = ?, category_id = COALESCE(?, category_id) WHERE id = ?",
		core.StatusSent, finalReply, categoryID, id)
	if err != nil {
		return fmt.Errorf("failed to mark message %d sent: %w", id, err)
	}
	return nil
}

func (s *SQLStore) MarkDeleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE emails SET status = ? WHERE id = ?", core.StatusDeleted, id)
	if err != nil {
		return fmt.Errorf("failed to mark message %d deleted: %w", id, err)
	}
	return nil
}

func (s *SQLStore) InsertAction(ctx context.Context, action *core.SentAction) error {
	if action.SentAt.IsZero() {
		action.SentAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO email_actions (message_id, ai_category_id, ai_confidence, final_category_id, sent_at, smtp_response)
		VALUES (:message_id, :ai_category_id, :ai_confidence, :final_category_id, :sent_at, :smtp_response)`,
		action)
	if err != nil {
		return fmt.Errorf("failed to record sent action: %w", err)
	}
	return nil
}

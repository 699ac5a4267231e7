package core

import (
	"time"
)

// Message lifecycle statuses
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusDeleted = "deleted"
)

// Classification methods
const (
	MethodKeyword = "keyword"
	MethodAI      = "ai"
	MethodDefault = "default"
)

// Reply draft sources
const (
	ReplySourceTemplate = "template"
	ReplySourceAI       = "ai"
)

// MailAccount holds the retrieval and submission endpoints of a mailbox.
// The pipeline treats the most recently updated account as read-only configuration.
type MailAccount struct {
	ID        int64     `db:"id"`
	Email     string    `db:"email"`
	IMAPHost  string    `db:"imap_host"`
	IMAPPort  int       `db:"imap_port"`
	SMTPHost  string    `db:"smtp_host"`
	SMTPPort  int       `db:"smtp_port"`
	Username  string    `db:"username"`
	Password  string    `db:"password"`
	UseSSL    bool      `db:"use_ssl"`
	UpdatedAt time.Time `db:"updated_at"`
}

// InboundMessage is a fully decoded, persisted customer email.
// MessageID is the natural key; ingestion is idempotent on it.
type InboundMessage struct {
	ID          int64     `db:"id"`
	MessageID   string    `db:"message_id"`
	Sender      string    `db:"sender"`
	Subject     string    `db:"subject"`
	BodyText    string    `db:"body_text"`
	BodyHTML    string    `db:"body_html"`
	ReceivedAt  time.Time `db:"received_at"`
	Language    string    `db:"language"`
	Translation *string   `db:"translation"`
	Status      string    `db:"status"`
	CategoryID  *int64    `db:"category_id"`
	Confidence  *float64  `db:"confidence"`
	DraftReply  *string   `db:"draft_reply"`
	FinalReply  *string   `db:"final_reply"`
	CreatedAt   time.Time `db:"created_at"`
}

// Category is a classification target. Categories are always consumed ordered
// by priority descending; that order also breaks keyword-score ties.
type Category struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Keywords    string `db:"keywords"`
	IsDefault   bool   `db:"is_default"`
	Priority    int    `db:"priority"`
}

// Template is a reply template bound to exactly one category. Content uses
// {Name}-style placeholders; Variables optionally declares extra variable
// names as a comma-separated list.
type Template struct {
	ID         int64  `db:"id"`
	CategoryID int64  `db:"category_id"`
	Name       string `db:"name"`
	Content    string `db:"content"`
	Variables  string `db:"variables"`
}

// ClassificationResult is the outcome of the classification fallback chain.
// Confidence is always within [0,1]; Category is nil only when the chain ran
// with no categories at all.
type ClassificationResult struct {
	Category   *Category
	Confidence float64
	Method     string
	Reason     string
}

// ReplyDraft is a rendered or AI-drafted reply awaiting operator review.
type ReplyDraft struct {
	Source  string
	Subject string
	Body    string
}

// SentAction is the audit record written when a reply is sent, capturing the
// classifier's choice next to the category finally used.
type SentAction struct {
	ID              int64     `db:"id"`
	MessageID       int64     `db:"message_id"`
	AICategoryID    *int64    `db:"ai_category_id"`
	AIConfidence    *float64  `db:"ai_confidence"`
	FinalCategoryID *int64    `db:"final_category_id"`
	SentAt          time.Time `db:"sent_at"`
	SMTPResponse    string    `db:"smtp_response"`
}

// DecodedMessage is the decoder's view of a raw message blob, before any
// persistence or classification.
type DecodedMessage struct {
	MessageID  string
	Sender     string
	Subject    string
	BodyText   string
	BodyHTML   string
	ReceivedAt time.Time
}

// ClampConfidence forces a confidence value into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

package core

import (
	"context"
)

// Search criteria understood by MailboxClient.Search.
const (
	SearchAll    = "ALL"
	SearchUnseen = "UNSEEN"
)

// MailboxClient is a connection to a mailbox retrieval server speaking the
// tagged wire protocol. Implementations are single-use: one Connect/Close per
// pull cycle.
type MailboxClient interface {
	// Connect dials the server and performs the TLS handshake.
	Connect(ctx context.Context) error

	// Login authenticates; returns ErrAuthentication when the server does
	// not affirmatively acknowledge success.
	Login(username, password string) error

	// Identify sends the optional client-identification command. Best
	// effort: failures are ignored by callers.
	Identify(email string) error

	// SelectInbox opens the inbox and returns the reported message count.
	SelectInbox() (int, error)

	// Search returns the ordered message identifiers matching the criterion.
	Search(criterion string) ([]string, error)

	// Fetch retrieves the raw message bytes for one identifier. A nil slice
	// with a nil error means the response framing was unrecognized; the
	// caller drops that message and continues.
	Fetch(id string) ([]byte, error)

	// Close logs out best-effort and unconditionally closes the socket.
	Close() error
}

// MailboxDial creates a protocol client for a host/port pair. Injected so the
// pipeline can be exercised against a fake server.
type MailboxDial func(host string, port int) MailboxClient

// MessageDecoder turns a raw message blob into a structured record.
type MessageDecoder interface {
	Decode(raw []byte) (*DecodedMessage, error)
}

// MessageSender submits a single reply through the account's submission server.
// It returns the transport response token on success.
type MessageSender interface {
	Send(ctx context.Context, account *MailAccount, to, subject, body string) (string, error)
}

// AIClassification is the parsed semantic-stage response. CategoryID 0 means
// the model found no match.
type AIClassification struct {
	CategoryID int64
	Confidence float64
	Reason     string
}

// LLMClient talks to an external completion endpoint for the semantic
// classification stage and for drafting replies.
type LLMClient interface {
	ClassifyMessage(ctx context.Context, text string, categories []Category) (*AIClassification, error)
	DraftReply(ctx context.Context, text, categoryName, categoryDescription string) (*ReplyDraft, error)
}

// Translator converts text into the target language. Errors mean the
// translation is unavailable; callers never retry within the same cycle.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// LanguageDetector guesses the language of a text, returning an ISO 639-1
// code or "" when detection fails. SameBase reports whether two codes share a
// base language, so regional variants count as the same target.
type LanguageDetector interface {
	Detect(text string) string
	SameBase(a, b string) bool
}

// Store is the persisted state the pipeline reads and writes. Idempotency of
// ingestion rests on InsertMessage refusing duplicate message ids.
type Store interface {
	GetSetting(ctx context.Context, key, fallback string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	CurrentAccount(ctx context.Context) (*MailAccount, error)
	ListCategories(ctx context.Context) ([]Category, error)
	LatestTemplateByCategory(ctx context.Context, categoryID int64) (*Template, error)

	MessageExists(ctx context.Context, messageID string) (bool, error)
	InsertMessage(ctx context.Context, msg *InboundMessage) (int64, error)
	GetMessage(ctx context.Context, id int64) (*InboundMessage, error)
	ListMessages(ctx context.Context, status string) ([]InboundMessage, error)
	UpdateClassification(ctx context.Context, id int64, categoryID int64, confidence float64, draft *string) error
	UpdateSent(ctx context.Context, id int64, finalReply string, categoryID *int64) error
	MarkDeleted(ctx context.Context, id int64) error

	InsertAction(ctx context.Context, action *SentAction) error
}

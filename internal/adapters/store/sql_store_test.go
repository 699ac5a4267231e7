package store

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/support-mailer/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(DriverSQLite, ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testMessage(messageID string) *core.InboundMessage {
	return &core.InboundMessage{
		MessageID:  messageID,
		Sender:     "Jane Doe <jane@example.com>",
		Subject:    "Where is my order?",
		BodyText:   "Order #ABC-12345 has not arrived yet.",
		ReceivedAt: time.Date(2025, 1, 6, 2, 30, 0, 0, time.UTC),
		Language:   "en",
	}
}

func TestSeedDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	categories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.True(t, categories[0].IsDefault)
	assert.Equal(t, "Other", categories[0].Name)

	tmpl, err := s.LatestTemplateByCategory(ctx, categories[0].ID)
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Contains(t, tmpl.Content, "{Customer Name}")
}

func TestInsertMessageIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.InsertMessage(ctx, testMessage("<dup@example.com>"))
	require.NoError(t, err)

	second, err := s.InsertMessage(ctx, testMessage("<dup@example.com>"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	messages, err := s.ListMessages(ctx, "")
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	exists, err := s.MessageExists(ctx, "<dup@example.com>")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.MessageExists(ctx, "<unknown@example.com>")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertMessage(ctx, testMessage("<life@example.com>"))
	require.NoError(t, err)

	msg, err := s.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, msg.Status)
	assert.Nil(t, msg.CategoryID)

	draft := "Dear Jane, your order is on its way."
	require.NoError(t, s.UpdateClassification(ctx, id, 1, 0.7, &draft))

	msg, err = s.GetMessage(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, msg.CategoryID)
	assert.Equal(t, int64(1), *msg.CategoryID)
	require.NotNil(t, msg.Confidence)
	assert.InDelta(t, 0.7, *msg.Confidence, 1e-9)
	require.NotNil(t, msg.DraftReply)
	assert.Equal(t, draft, *msg.DraftReply)

	finalCategory := int64(1)
	require.NoError(t, s.UpdateSent(ctx, id, "final text", &finalCategory))
	msg, err = s.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSent, msg.Status)
	require.NotNil(t, msg.FinalReply)
	assert.Equal(t, "final text", *msg.FinalReply)

	pending, err := s.ListMessages(ctx, core.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.MarkDeleted(ctx, id))
	msg, err = s.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDeleted, msg.Status)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	value, err := s.GetSetting(ctx, "llm_model", "default-model")
	require.NoError(t, err)
	assert.Equal(t, "default-model", value)

	require.NoError(t, s.SetSetting(ctx, "llm_model", "deepseek-chat"))
	require.NoError(t, s.SetSetting(ctx, "llm_model", "deepseek-chat-v2"))

	value, err = s.GetSetting(ctx, "llm_model", "default-model")
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat-v2", value)
}

func TestCurrentAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CurrentAccount(ctx)
	assert.ErrorIs(t, err, core.ErrNoAccount)

	account := &core.MailAccount{
		Email:    "support@example.com",
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
		SMTPHost: "smtp.example.com",
		SMTPPort: 465,
		Username: "support@example.com",
		Password: "secret",
		UseSSL:   true,
	}
	require.NoError(t, s.SaveAccount(ctx, account))

	loaded, err := s.CurrentAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com", loaded.IMAPHost)
	assert.True(t, loaded.UseSSL)

	// Saving the same address again updates in place.
	account.IMAPHost = "imap2.example.com"
	require.NoError(t, s.SaveAccount(ctx, account))
	loaded, err = s.CurrentAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "imap2.example.com", loaded.IMAPHost)
}

func TestInsertAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertMessage(ctx, testMessage("<action@example.com>"))
	require.NoError(t, err)

	aiCategory := int64(2)
	aiConfidence := 0.8
	finalCategory := int64(1)
	err = s.InsertAction(ctx, &core.SentAction{
		MessageID:       id,
		AICategoryID:    &aiCategory,
		AIConfidence:    &aiConfidence,
		FinalCategoryID: &finalCategory,
		SMTPResponse:    "250 OK",
	})
	require.NoError(t, err)
}

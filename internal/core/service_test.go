package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu         sync.Mutex
	account    *MailAccount
	categories []Category
	templates  map[int64]*Template
	messages   map[int64]*InboundMessage
	actions    []SentAction
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates: map[int64]*Template{},
		messages:  map[int64]*InboundMessage{},
	}
}

func (f *fakeStore) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	return fallback, nil
}
func (f *fakeStore) SetSetting(ctx context.Context, key, value string) error { return nil }

func (f *fakeStore) CurrentAccount(ctx context.Context) (*MailAccount, error) {
	if f.account == nil {
		return nil, ErrNoAccount
	}
	return f.account, nil
}

func (f *fakeStore) ListCategories(ctx context.Context) ([]Category, error) {
	return f.categories, nil
}

func (f *fakeStore) LatestTemplateByCategory(ctx context.Context, categoryID int64) (*Template, error) {
	return f.templates[categoryID], nil
}

func (f *fakeStore) MessageExists(ctx context.Context, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.MessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, msg *InboundMessage) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, m := range f.messages {
		if m.MessageID == msg.MessageID {
			return id, nil
		}
	}
	f.nextID++
	stored := *msg
	stored.ID = f.nextID
	f.messages[f.nextID] = &stored
	return f.nextID, nil
}

func (f *fakeStore) GetMessage(ctx context.Context, id int64) (*InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) ListMessages(ctx context.Context, status string) ([]InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []InboundMessage
	for _, m := range f.messages {
		if status == "" || m.Status == status {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateClassification(ctx context.Context, id int64, categoryID int64, confidence float64, draft *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.messages[id]
	m.CategoryID = &categoryID
	m.Confidence = &confidence
	m.DraftReply = draft
	return nil
}

func (f *fakeStore) UpdateSent(ctx context.Context, id int64, finalReply string, categoryID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.messages[id]
	m.Status = StatusSent
	m.FinalReply = &finalReply
	if categoryID != nil {
		m.CategoryID = categoryID
	}
	return nil
}

func (f *fakeStore) MarkDeleted(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[id].Status = StatusDeleted
	return nil
}

func (f *fakeStore) InsertAction(ctx context.Context, action *SentAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, *action)
	return nil
}

type fakeMailbox struct {
	unseen  []string
	all     []string
	raw     map[string][]byte
	fetched []string
	closed  bool
	block   chan struct{}
	started chan struct{}
}

func (f *fakeMailbox) Connect(ctx context.Context) error { return nil }
func (f *fakeMailbox) Login(username, password string) error {
	if f.block != nil {
		if f.started != nil {
			close(f.started)
			f.started = nil
		}
		<-f.block
	}
	return nil
}
func (f *fakeMailbox) Identify(email string) error { return nil }
func (f *fakeMailbox) SelectInbox() (int, error)   { return len(f.all), nil }
func (f *fakeMailbox) Search(criterion string) ([]string, error) {
	if criterion == SearchUnseen {
		return f.unseen, nil
	}
	return f.all, nil
}
func (f *fakeMailbox) Fetch(id string) ([]byte, error) {
	f.fetched = append(f.fetched, id)
	return f.raw[id], nil
}
func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(raw []byte) (*DecodedMessage, error) {
	return &DecodedMessage{
		MessageID:  "<" + string(raw) + "@example.com>",
		Sender:     "Jane Doe <jane@example.com>",
		Subject:    "order question",
		BodyText:   "Where is my refund for order #REF-123456?",
		ReceivedAt: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
	}, nil
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, account *MailAccount, to, subject, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to)
	return "250 OK", nil
}

type fakeDetector struct{ lang string }

func (f fakeDetector) Detect(text string) string { return f.lang }
func (f fakeDetector) SameBase(a, b string) bool { return a == b }

type fakeTranslator struct{ out string }

func (f fakeTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return f.out, nil
}

func testCategories() []Category {
	return []Category{
		{ID: 1, Name: "Refund", Keywords: "refund,money back", Priority: 10},
		{ID: 2, Name: "Other", IsDefault: true, Priority: 0},
	}
}

func newTestService(store *fakeStore, box *fakeMailbox, sender *fakeSender) *PipelineService {
	return newTestServiceWithDetector(store, box, sender, fakeDetector{lang: "en"})
}

func newTestServiceWithDetector(store *fakeStore, box *fakeMailbox, sender *fakeSender, detector LanguageDetector) *PipelineService {
	dial := func(host string, port int) MailboxClient { return box }
	return NewPipelineService(
		store, dial, fakeDecoder{}, sender, nil,
		fakeTranslator{out: "translated"}, detector,
		CompanyInfo{Name: "Acme", Email: "support@acme.test", Phone: "555-0100"},
		"zh", zap.NewNop(),
	)
}

func TestRunCycleStoresAndClassifies(t *testing.T) {
	store := newFakeStore()
	store.account = &MailAccount{Email: "support@acme.test", IMAPHost: "imap.test", IMAPPort: 993}
	store.categories = testCategories()
	store.templates[1] = &Template{
		ID: 1, CategoryID: 1,
		Content: "Dear {Customer Name}, your refund for {Order Number} is being processed by {Company Name}.",
	}

	box := &fakeMailbox{
		unseen: []string{"1", "2"},
		all:    []string{"1", "2", "3"},
		raw:    map[string][]byte{"1": []byte("m1"), "2": []byte("m2")},
	}
	svc := newTestService(store, box, &fakeSender{})

	stats, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Searched)
	assert.Equal(t, 2, stats.Stored)
	assert.Equal(t, 0, stats.Failed)
	assert.True(t, box.closed)

	messages, err := store.ListMessages(context.Background(), StatusPending)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	msg := messages[0]
	require.NotNil(t, msg.CategoryID)
	assert.Equal(t, int64(1), *msg.CategoryID)
	require.NotNil(t, msg.DraftReply)
	assert.Contains(t, *msg.DraftReply, "Jane")
	assert.Contains(t, *msg.DraftReply, "REF-123456")
	assert.Contains(t, *msg.DraftReply, "Acme")
	assert.NotContains(t, *msg.DraftReply, "{")
	require.NotNil(t, msg.Translation)
	assert.Equal(t, "translated", *msg.Translation)
}

func TestRunCycleSkipsTranslationForTargetLanguage(t *testing.T) {
	store := newFakeStore()
	store.account = &MailAccount{IMAPHost: "imap.test", IMAPPort: 993}
	store.categories = testCategories()

	box := &fakeMailbox{
		unseen: []string{"1"},
		raw:    map[string][]byte{"1": []byte("m1")},
	}
	svc := newTestServiceWithDetector(store, box, &fakeSender{}, fakeDetector{lang: "zh"})

	stats, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)

	messages, err := store.ListMessages(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "zh", messages[0].Language)
	assert.Nil(t, messages[0].Translation)
}

func TestRunCycleSkipsTranslationWhenUndetected(t *testing.T) {
	store := newFakeStore()
	store.account = &MailAccount{IMAPHost: "imap.test", IMAPPort: 993}
	store.categories = testCategories()

	box := &fakeMailbox{
		unseen: []string{"1"},
		raw:    map[string][]byte{"1": []byte("m1")},
	}
	svc := newTestServiceWithDetector(store, box, &fakeSender{}, fakeDetector{lang: ""})

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	messages, err := store.ListMessages(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "", messages[0].Language)
	assert.Nil(t, messages[0].Translation)
}

func TestRunCycleSkipsDuplicates(t *testing.T) {
	store := newFakeStore()
	store.account = &MailAccount{IMAPHost: "imap.test", IMAPPort: 993}
	store.categories = testCategories()

	box := &fakeMailbox{
		unseen: []string{"1"},
		raw:    map[string][]byte{"1": []byte("same")},
	}
	svc := newTestService(store, box, &fakeSender{})

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	stats, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Stored)
	assert.Equal(t, 1, stats.Skipped)
}

func TestRunCycleFallsBackToAllSearch(t *testing.T) {
	store := newFakeStore()
	store.account = &MailAccount{IMAPHost: "imap.test", IMAPPort: 993}
	store.categories = testCategories()

	box := &fakeMailbox{
		unseen: nil,
		all:    []string{"5"},
		raw:    map[string][]byte{"5": []byte("m5")},
	}
	svc := newTestService(store, box, &fakeSender{})

	stats, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)
}

func TestRunCycleNoAccount(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeMailbox{}, &fakeSender{})
	_, err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestRunCycleSingleFlight(t *testing.T) {
	store := newFakeStore()
	store.account = &MailAccount{IMAPHost: "imap.test", IMAPPort: 993}
	store.categories = testCategories()

	block := make(chan struct{})
	started := make(chan struct{})
	box := &fakeMailbox{block: block, started: started}
	svc := newTestService(store, box, &fakeSender{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunCycle(context.Background())
		done <- err
	}()

	// Wait until the first cycle holds the lock inside Login.
	<-started
	_, err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(block)
	require.NoError(t, <-done)
}

func TestSendReplyUsesDraftAndRecordsAction(t *testing.T) {
	store := newFakeStore()
	store.account = &MailAccount{SMTPHost: "smtp.test", SMTPPort: 465, Username: "support@acme.test"}
	draft := "drafted reply"
	catID := int64(1)
	conf := 0.7
	store.messages[1] = &InboundMessage{
		ID: 1, MessageID: "<x@example.com>",
		Sender: "Jane Doe <jane@example.com>", Subject: "help",
		Status: StatusPending, DraftReply: &draft,
		CategoryID: &catID, Confidence: &conf,
	}
	store.nextID = 1

	sender := &fakeSender{}
	svc := newTestService(store, &fakeMailbox{}, sender)

	resp, err := svc.SendReply(context.Background(), 1, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "250 OK", resp)
	assert.Equal(t, []string{"jane@example.com"}, sender.sent)

	msg, err := store.GetMessage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, msg.Status)
	require.NotNil(t, msg.FinalReply)
	assert.Equal(t, draft, *msg.FinalReply)

	require.Len(t, store.actions, 1)
	action := store.actions[0]
	assert.Equal(t, int64(1), action.MessageID)
	require.NotNil(t, action.FinalCategoryID)
	assert.Equal(t, catID, *action.FinalCategoryID)
	assert.Equal(t, "250 OK", action.SMTPResponse)
}

func TestSendReplyWithoutDraft(t *testing.T) {
	store := newFakeStore()
	store.account = &MailAccount{}
	store.messages[1] = &InboundMessage{ID: 1, Sender: "a@b.c", Status: StatusPending}

	svc := newTestService(store, &fakeMailbox{}, &fakeSender{})
	_, err := svc.SendReply(context.Background(), 1, "", nil)
	assert.ErrorIs(t, err, ErrNoDraft)

	// An explicit body sends even without a draft.
	resp, err := svc.SendReply(context.Background(), 1, "manual reply", nil)
	require.NoError(t, err)
	assert.Equal(t, "250 OK", resp)
}

func TestGenerateReplyUsesStoredCategory(t *testing.T) {
	store := newFakeStore()
	store.categories = testCategories()
	store.templates[1] = &Template{
		ID: 1, CategoryID: 1,
		Content: "Dear {Customer Name}, your refund is underway.",
	}
	catID := int64(1)
	conf := 0.85
	store.messages[1] = &InboundMessage{
		ID: 1, Sender: "Jane Doe <jane@example.com>", Subject: "refund",
		BodyText: "please refund me", Status: StatusPending,
		CategoryID: &catID, Confidence: &conf,
	}
	store.nextID = 1

	svc := newTestService(store, &fakeMailbox{}, &fakeSender{})
	draft, err := svc.GenerateReply(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ReplySourceTemplate, draft.Source)
	assert.Contains(t, draft.Body, "Jane")

	msg, err := store.GetMessage(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, msg.DraftReply)
	assert.Equal(t, draft.Body, *msg.DraftReply)
	require.NotNil(t, msg.Confidence)
	assert.InDelta(t, 0.85, *msg.Confidence, 1e-9)
}

func TestGenerateReplyClassifiesWhenUnclassified(t *testing.T) {
	store := newFakeStore()
	store.categories = testCategories()
	store.templates[1] = &Template{
		ID: 1, CategoryID: 1,
		Content: "We will process your refund, {Customer Name}.",
	}
	store.messages[1] = &InboundMessage{
		ID: 1, Sender: "jane@example.com", Subject: "hi",
		BodyText: "I want my money back", Status: StatusPending,
	}
	store.nextID = 1

	svc := newTestService(store, &fakeMailbox{}, &fakeSender{})
	draft, err := svc.GenerateReply(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ReplySourceTemplate, draft.Source)

	msg, err := store.GetMessage(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, msg.CategoryID)
	assert.Equal(t, int64(1), *msg.CategoryID)
}

func TestGenerateReplyWithoutTemplateOrLLM(t *testing.T) {
	store := newFakeStore()
	store.categories = testCategories()
	store.messages[1] = &InboundMessage{
		ID: 1, Sender: "jane@example.com", Subject: "hi",
		BodyText: "unrelated", Status: StatusPending,
	}
	store.nextID = 1

	svc := newTestService(store, &fakeMailbox{}, &fakeSender{})
	_, err := svc.GenerateReply(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoDraft)
}

func TestAnalyzeMessage(t *testing.T) {
	store := newFakeStore()
	store.categories = testCategories()
	store.messages[1] = &InboundMessage{
		ID: 1, Sender: "jane@example.com", Subject: "question",
		BodyText: "I want my money back", Status: StatusPending,
	}
	store.nextID = 1

	svc := newTestService(store, &fakeMailbox{}, &fakeSender{})
	result, draft, err := svc.AnalyzeMessage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Refund", result.Category.Name)
	assert.Equal(t, MethodKeyword, result.Method)
	assert.Nil(t, draft)

	msg, err := store.GetMessage(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, msg.CategoryID)
	assert.Equal(t, int64(1), *msg.CategoryID)
}

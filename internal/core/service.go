package core

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"
	"sync"

	"github.com/mikey/support-mailer/internal/textutil"
	"go.uber.org/zap"
)

// Translated text sent to the translation API is capped at this many runes.
const maxTranslationChars = 2000

// CycleStats summarizes one pull cycle.
type CycleStats struct {
	Reported int `json:"reported"`
	Searched int `json:"searched"`
	Fetched  int `json:"fetched"`
	Stored   int `json:"stored"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// PipelineService drives the whole mail pipeline: pull, decode, translate,
// classify, draft and send. At most one cycle runs at a time; a cycle
// requested while another runs fails with ErrSyncInProgress.
type PipelineService struct {
	store      Store
	dial       MailboxDial
	decoder    MessageDecoder
	sender     MessageSender
	llm        LLMClient
	translator Translator
	detector   LanguageDetector
	company    CompanyInfo
	targetLang string
	logger     *zap.Logger

	mu sync.Mutex
}

// NewPipelineService wires the pipeline. llm and translator may be nil; the
// corresponding stages are then skipped.
func NewPipelineService(
	store Store,
	dial MailboxDial,
	decoder MessageDecoder,
	sender MessageSender,
	llm LLMClient,
	translator Translator,
	detector LanguageDetector,
	company CompanyInfo,
	targetLang string,
	logger *zap.Logger,
) *PipelineService {
	return &PipelineService{
		store:      store,
		dial:       dial,
		decoder:    decoder,
		sender:     sender,
		llm:        llm,
		translator: translator,
		detector:   detector,
		company:    company,
		targetLang: targetLang,
		logger:     logger,
	}
}

// RunCycle executes one pull cycle against the configured account. Message
// level failures are logged and counted; only account, connection and
// authentication problems fail the cycle itself.
func (s *PipelineService) RunCycle(ctx context.Context) (*CycleStats, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	account, err := s.store.CurrentAccount(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	client := s.dial(account.IMAPHost, account.IMAPPort)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.Login(account.Username, account.Password); err != nil {
		return nil, err
	}
	if err := client.Identify(account.Email); err != nil {
		s.logger.Debug("Client identification failed", zap.Error(err))
	}

	stats := &CycleStats{}
	stats.Reported, err = client.SelectInbox()
	if err != nil {
		return nil, err
	}

	ids, err := client.Search(SearchUnseen)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if ids, err = client.Search(SearchAll); err != nil {
			return nil, err
		}
	}
	stats.Searched = len(ids)

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
		s.processOne(ctx, client, id, categories, stats)
	}

	s.logger.Info("Pull cycle finished",
		zap.Int("reported", stats.Reported),
		zap.Int("searched", stats.Searched),
		zap.Int("stored", stats.Stored),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

// SyncNow is the manually triggered pull cycle. It shares RunCycle's
// single-flight gate with the scheduler.
func (s *PipelineService) SyncNow(ctx context.Context) (*CycleStats, error) {
	return s.RunCycle(ctx)
}

func (s *PipelineService) processOne(ctx context.Context, client MailboxClient, id string, categories []Category, stats *CycleStats) {
	raw, err := client.Fetch(id)
	if err != nil {
		s.logger.Warn("Fetch failed", zap.String("id", id), zap.Error(err))
		stats.Failed++
		return
	}
	if raw == nil {
		stats.Skipped++
		return
	}
	stats.Fetched++

	decoded, err := s.decoder.Decode(raw)
	if err != nil {
		s.logger.Warn("Decode failed", zap.String("id", id), zap.Error(err))
		stats.Failed++
		return
	}
	if decoded.MessageID == "" {
		// No Message-Id header; derive a stable synthetic key so the
		// idempotency guarantee still holds across cycles.
		decoded.MessageID = fmt.Sprintf("<%x@synthetic.local>", md5.Sum(raw))
	}

	exists, err := s.store.MessageExists(ctx, decoded.MessageID)
	if err != nil {
		s.logger.Error("Existence check failed", zap.Error(err))
		stats.Failed++
		return
	}
	if exists {
		stats.Skipped++
		return
	}

	msg := &InboundMessage{
		MessageID:  decoded.MessageID,
		Sender:     decoded.Sender,
		Subject:    decoded.Subject,
		BodyText:   decoded.BodyText,
		BodyHTML:   decoded.BodyHTML,
		ReceivedAt: decoded.ReceivedAt,
		Status:     StatusPending,
	}

	body := s.readableBody(msg)
	msg.Language = s.detector.Detect(body)
	if translated := s.translate(ctx, body, msg.Language); translated != "" {
		msg.Translation = &translated
	}

	rowID, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		s.logger.Error("Insert failed", zap.String("message_id", msg.MessageID), zap.Error(err))
		stats.Failed++
		return
	}
	msg.ID = rowID
	stats.Stored++

	if err := s.classifyAndDraft(ctx, msg, categories); err != nil {
		s.logger.Warn("Classification failed", zap.Int64("id", rowID), zap.Error(err))
	}
}

// readableBody prefers the plain-text body, degrading to the tag-stripped HTML
// body when no plain part exists.
func (s *PipelineService) readableBody(msg *InboundMessage) string {
	if strings.TrimSpace(msg.BodyText) != "" {
		return msg.BodyText
	}
	return textutil.StripHTMLTags(msg.BodyHTML)
}

// translate converts the body into the operator's language. It returns ""
// whenever translation is unnecessary or unavailable; a failed translation is
// logged, never fatal.
func (s *PipelineService) translate(ctx context.Context, body, lang string) string {
	if s.translator == nil || s.targetLang == "" {
		return ""
	}
	if lang == "" || s.detector.SameBase(lang, s.targetLang) {
		return ""
	}
	text := textutil.TruncateText(textutil.SanitizeUTF8(body), maxTranslationChars)
	translated, err := s.translator.Translate(ctx, text, s.targetLang)
	if err != nil {
		s.logger.Warn("Translation unavailable", zap.String("lang", lang), zap.Error(err))
		return ""
	}
	return translated
}

// classifyAndDraft runs the classification chain for a stored message and
// attaches a draft reply, preferring the category's template over an AI draft.
func (s *PipelineService) classifyAndDraft(ctx context.Context, msg *InboundMessage, categories []Category) error {
	if len(categories) == 0 {
		return fmt.Errorf("no categories configured")
	}

	result := Classify(ctx, s.classificationText(msg), categories, s.llm, s.logger)
	draft := s.draftReply(ctx, msg, result.Category)

	var draftBody *string
	if draft != nil {
		draftBody = &draft.Body
	}
	if err := s.store.UpdateClassification(ctx, msg.ID, result.Category.ID, result.Confidence, draftBody); err != nil {
		return err
	}

	s.logger.Info("Message classified",
		zap.Int64("id", msg.ID),
		zap.String("category", result.Category.Name),
		zap.String("method", result.Method),
		zap.Float64("confidence", result.Confidence))
	return nil
}

// classificationText is what the chain matches against: the subject plus the
// translation when one exists, the original body otherwise.
func (s *PipelineService) classificationText(msg *InboundMessage) string {
	body := s.readableBody(msg)
	if msg.Translation != nil && *msg.Translation != "" {
		body = body + "\n" + *msg.Translation
	}
	return strings.TrimSpace(msg.Subject + "\n" + body)
}

// draftReply renders the category's newest template, or asks the completion
// endpoint when the category has none. A nil return means no draft.
func (s *PipelineService) draftReply(ctx context.Context, msg *InboundMessage, category *Category) *ReplyDraft {
	tmpl, err := s.store.LatestTemplateByCategory(ctx, category.ID)
	if err != nil {
		s.logger.Warn("Template lookup failed", zap.Int64("category_id", category.ID), zap.Error(err))
	}
	if tmpl != nil {
		vars := BuildVariables(msg, tmpl.Variables, s.company)
		return &ReplyDraft{
			Source:  ReplySourceTemplate,
			Subject: "Re: " + msg.Subject,
			Body:    RenderTemplate(tmpl.Content, vars),
		}
	}

	if s.llm == nil {
		return nil
	}
	draft, err := s.llm.DraftReply(ctx, s.classificationText(msg), category.Name, category.Description)
	if err != nil {
		s.logger.Warn("AI draft unavailable", zap.Int64("id", msg.ID), zap.Error(err))
		return nil
	}
	return draft
}

// AnalyzeMessage re-runs classification and drafting for one stored message,
// persisting the outcome.
func (s *PipelineService) AnalyzeMessage(ctx context.Context, id int64) (*ClassificationResult, *ReplyDraft, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(categories) == 0 {
		return nil, nil, fmt.Errorf("no categories configured")
	}

	result := Classify(ctx, s.classificationText(msg), categories, s.llm, s.logger)
	draft := s.draftReply(ctx, msg, result.Category)

	var draftBody *string
	if draft != nil {
		draftBody = &draft.Body
	}
	if err := s.store.UpdateClassification(ctx, id, result.Category.ID, result.Confidence, draftBody); err != nil {
		return nil, nil, err
	}
	return &result, draft, nil
}

// GenerateReply produces and persists a fresh draft for a stored message,
// reusing its existing classification when one is present and classifying
// first otherwise. ErrNoDraft means no template and no LLM could serve the
// category.
func (s *PipelineService) GenerateReply(ctx context.Context, id int64) (*ReplyDraft, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories configured")
	}

	var category *Category
	confidence := 0.0
	if msg.CategoryID != nil {
		for i := range categories {
			if categories[i].ID == *msg.CategoryID {
				category = &categories[i]
				break
			}
		}
		if msg.Confidence != nil {
			confidence = *msg.Confidence
		}
	}
	if category == nil {
		result := Classify(ctx, s.classificationText(msg), categories, s.llm, s.logger)
		category = result.Category
		confidence = result.Confidence
	}

	draft := s.draftReply(ctx, msg, category)
	if draft == nil {
		return nil, ErrNoDraft
	}
	if err := s.store.UpdateClassification(ctx, id, category.ID, confidence, &draft.Body); err != nil {
		return nil, err
	}

	s.logger.Info("Draft regenerated",
		zap.Int64("id", id),
		zap.String("category", category.Name),
		zap.String("source", draft.Source))
	return draft, nil
}

// SendReply submits a reply for a stored message. body overrides the stored
// draft when non-empty; categoryID overrides the classifier's category when
// non-nil. The sent action is recorded for audit either way.
func (s *PipelineService) SendReply(ctx context.Context, id int64, body string, categoryID *int64) (string, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return "", err
	}
	if msg.Status == StatusDeleted {
		return "", fmt.Errorf("message %d is deleted", id)
	}

	if body == "" {
		if msg.DraftReply == nil || *msg.DraftReply == "" {
			return "", ErrNoDraft
		}
		body = *msg.DraftReply
	}

	account, err := s.store.CurrentAccount(ctx)
	if err != nil {
		return "", err
	}

	to := SenderAddress(msg.Sender)
	subject := "Re: " + msg.Subject
	resp, err := s.sender.Send(ctx, account, to, subject, body)
	if err != nil {
		return "", err
	}

	finalCategory := categoryID
	if finalCategory == nil {
		finalCategory = msg.CategoryID
	}
	if err := s.store.UpdateSent(ctx, id, body, categoryID); err != nil {
		return resp, err
	}
	action := &SentAction{
		MessageID:       id,
		AICategoryID:    msg.CategoryID,
		AIConfidence:    msg.Confidence,
		FinalCategoryID: finalCategory,
		SMTPResponse:    resp,
	}
	if err := s.store.InsertAction(ctx, action); err != nil {
		s.logger.Error("Failed to record sent action", zap.Int64("id", id), zap.Error(err))
	}

	s.logger.Info("Reply submitted", zap.Int64("id", id), zap.String("to", to))
	return resp, nil
}

// DeleteMessage soft-deletes a stored message.
func (s *PipelineService) DeleteMessage(ctx context.Context, id int64) error {
	return s.store.MarkDeleted(ctx, id)
}

// ListMessages exposes stored messages, optionally filtered by status.
func (s *PipelineService) ListMessages(ctx context.Context, status string) ([]InboundMessage, error) {
	return s.store.ListMessages(ctx, status)
}

// GetMessage exposes a single stored message.
func (s *PipelineService) GetMessage(ctx context.Context, id int64) (*InboundMessage, error) {
	return s.store.GetMessage(ctx, id)
}

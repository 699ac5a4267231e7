package core

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Names treated as the "no match" bucket when the semantic stage returns
// category id 0.
var otherCategoryNames = []string{"other", "Other", "其他"}

const (
	keywordReason = "keyword match"
	defaultReason = "no stage produced a match, using the default category"
)

// Classify resolves a message body to a category through the ordered fallback
// chain: keyword containment, then the semantic stage when an LLM client is
// configured, then the default category. It never fails: given a non-empty
// category list it always returns a concrete category. An empty list yields a
// nil-category default result instead of panicking.
func Classify(ctx context.Context, text string, categories []Category, llm LLMClient, logger *zap.Logger) ClassificationResult {
	if len(categories) == 0 {
		return ClassificationResult{
			Confidence: 0.1,
			Method:     MethodDefault,
			Reason:     "no categories configured",
		}
	}

	if hit := keywordMatch(text, categories); hit != nil {
		return *hit
	}

	if llm != nil {
		if res := semanticMatch(ctx, text, categories, llm, logger); res != nil {
			return *res
		}
	}

	def := defaultCategory(categories)
	return ClassificationResult{
		Category:   def,
		Confidence: 0.1,
		Method:     MethodDefault,
		Reason:     defaultReason,
	}
}

// keywordMatch counts case-insensitive keyword hits per category. The category
// with the strictly highest hit count wins; ties keep the first qualifying
// category in priority-descending order.
func keywordMatch(text string, categories []Category) *ClassificationResult {
	lowered := strings.ToLower(text)

	var best *Category
	bestScore := 0
	for i := range categories {
		cat := &categories[i]
		score := 0
		for _, kw := range strings.Split(cat.Keywords, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		if score > 0 && score > bestScore {
			best = cat
			bestScore = score
		}
	}

	if best == nil {
		return nil
	}

	confidence := 0.6 + 0.1*float64(bestScore)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return &ClassificationResult{
		Category:   best,
		Confidence: confidence,
		Method:     MethodKeyword,
		Reason:     keywordReason,
	}
}

// semanticMatch asks the completion endpoint to pick a category. Any call or
// parse failure yields nil so the chain proceeds to the default stage.
func semanticMatch(ctx context.Context, text string, categories []Category, llm LLMClient, logger *zap.Logger) *ClassificationResult {
	ai, err := llm.ClassifyMessage(ctx, text, categories)
	if err != nil {
		logger.Warn("Semantic classification unavailable", zap.Error(err))
		return nil
	}

	reason := ai.Reason
	if ai.CategoryID == 0 {
		other := findByName(categories, otherCategoryNames)
		if other == nil {
			return nil
		}
		if reason == "" {
			reason = "no clear category match"
		}
		return &ClassificationResult{
			Category:   other,
			Confidence: 0.3,
			Method:     MethodAI,
			Reason:     reason,
		}
	}

	for i := range categories {
		if categories[i].ID == ai.CategoryID {
			return &ClassificationResult{
				Category:   &categories[i],
				Confidence: ClampConfidence(ai.Confidence),
				Method:     MethodAI,
				Reason:     reason,
			}
		}
	}

	logger.Warn("Semantic stage returned unknown category id", zap.Int64("category_id", ai.CategoryID))
	return nil
}

func findByName(categories []Category, names []string) *Category {
	for i := range categories {
		for _, n := range names {
			if categories[i].Name == n {
				return &categories[i]
			}
		}
	}
	return nil
}

// defaultCategory returns the flagged default, or the first category in
// priority-descending order when none is flagged.
func defaultCategory(categories []Category) *Category {
	for i := range categories {
		if categories[i].IsDefault {
			return &categories[i]
		}
	}
	return &categories[0]
}

package langdetect

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// Detector guesses the language of message text. Results are ISO 639-1 codes
// ("en", "zh", "de"); empty means the text carried no usable signal.
type Detector struct {
	minConfidence float64
}

// NewDetector creates a detector. Guesses below minConfidence are discarded.
func NewDetector(minConfidence float64) *Detector {
	return &Detector{minConfidence: minConfidence}
}

// Detect returns the two-letter code for the dominant language of text, or ""
// when detection is not confident enough.
func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	if info.Lang == -1 || info.Confidence < d.minConfidence {
		return ""
	}
	tag, err := language.Parse(info.Lang.Iso6391())
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

// SameBase implements the detector port's base-language comparison.
func (d *Detector) SameBase(a, b string) bool {
	return SameBase(a, b)
}

// SameBase reports whether two language codes share a base language, so that
// "zh", "zh-cn" and "zh-TW" all count as the same target.
func SameBase(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	baseA, _ := ta.Base()
	baseB, _ := tb.Base()
	return baseA == baseB
}

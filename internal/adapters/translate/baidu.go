package translate

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultEndpoint is the production translation API endpoint.
const DefaultEndpoint = "https://fanyi-api.baidu.com/api/trans/vip/translate"

// BaiduTranslator calls the signed translation API. The signature is
// md5(appid + query + salt + secret) per the provider's scheme.
type BaiduTranslator struct {
	appID    string
	secret   string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

type apiResponse struct {
	ErrorCode   string `json:"error_code"`
	ErrorMsg    string `json:"error_msg"`
	TransResult []struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	} `json:"trans_result"`
}

// NewBaiduTranslator creates a translator. An empty endpoint selects the
// production API.
func NewBaiduTranslator(appID, secret, endpoint string, logger *zap.Logger) *BaiduTranslator {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &BaiduTranslator{
		appID:    appID,
		secret:   secret,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 20 * time.Second},
		logger:   logger,
	}
}

// Translate converts text into targetLang. Empty input short-circuits to an
// empty result without touching the network. Multi-segment results are joined
// with newlines.
func (t *BaiduTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	salt := fmt.Sprintf("%d%d", time.Now().UnixNano(), rand.Intn(10000))
	sign := fmt.Sprintf("%x", md5.Sum([]byte(t.appID+text+salt+t.secret)))

	params := url.Values{}
	params.Set("q", text)
	params.Set("from", "auto")
	params.Set("to", targetLang)
	params.Set("appid", t.appID)
	params.Set("salt", salt)
	params.Set("sign", sign)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build translation request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read translation response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse translation response: %w", err)
	}
	if parsed.ErrorCode != "" && parsed.ErrorCode != "0" {
		return "", fmt.Errorf("translation API error %s: %s", parsed.ErrorCode, parsed.ErrorMsg)
	}
	if len(parsed.TransResult) == 0 {
		return "", fmt.Errorf("translation response carried no segments")
	}

	segments := make([]string, 0, len(parsed.TransResult))
	for _, r := range parsed.TransResult {
		segments = append(segments, r.Dst)
	}

	t.logger.Debug("Translated text",
		zap.String("target", targetLang),
		zap.Int("segments", len(segments)))
	return strings.Join(segments, "\n"), nil
}

package translate

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTranslateJoinsSegments(t *testing.T) {
	var gotQuery, gotSign, gotSalt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotSign = r.URL.Query().Get("sign")
		gotSalt = r.URL.Query().Get("salt")
		assert.Equal(t, "auto", r.URL.Query().Get("from"))
		assert.Equal(t, "zh", r.URL.Query().Get("to"))
		fmt.Fprint(w, `{"from":"en","to":"zh","trans_result":[{"src":"line one","dst":"第一行"},{"src":"line two","dst":"第二行"}]}`)
	}))
	defer srv.Close()

	tr := NewBaiduTranslator("appid", "secret", srv.URL, zap.NewNop())
	out, err := tr.Translate(context.Background(), "line one\nline two", "zh")
	require.NoError(t, err)
	assert.Equal(t, "第一行\n第二行", out)
	assert.Equal(t, "line one\nline two", gotQuery)

	expectedSign := fmt.Sprintf("%x", md5.Sum([]byte("appid"+gotQuery+gotSalt+"secret")))
	assert.Equal(t, expectedSign, gotSign)
}

func TestTranslateEmptyTextSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty text")
	}))
	defer srv.Close()

	tr := NewBaiduTranslator("appid", "secret", srv.URL, zap.NewNop())
	out, err := tr.Translate(context.Background(), "   ", "zh")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestTranslateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error_code":"54001","error_msg":"Invalid Sign"}`)
	}))
	defer srv.Close()

	tr := NewBaiduTranslator("appid", "secret", srv.URL, zap.NewNop())
	_, err := tr.Translate(context.Background(), "hello", "zh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "54001")
}

package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xhttp "SmartTrader/pkg/http"
	"SmartTrader/pkg/logger"
	"SmartTrader/pkg/metrics"
)

type captured struct {
	mu       sync.Mutex
	paths    []string
	payloads []map[string]any
}

func (c *captured) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func newTestNotifier(t *testing.T, minLevel string, reply string, status int) (*Notifier, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.payloads = append(c.payloads, body)
		c.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	n := New(Config{Enabled: true, BaseURL: srv.URL + "/", BotToken: "123:abc", ChatID: "42", MinLevel: minLevel},
		xhttp.NewClient(), metrics.Nop{}, logger.Nop())
	return n, c
}

func TestSendPostsHTMLMessage(t *testing.T) {
	n, c := newTestNotifier(t, "INFO", `{"ok":true,"result":{}}`, http.StatusOK)
	require.NoError(t, n.Send(context.Background(), "<b>Trade</b> BUY"))

	require.Equal(t, 1, c.count())
	assert.Equal(t, "/bot123:abc/sendMessage", c.paths[0])
	assert.Equal(t, "42", c.payloads[0]["chat_id"])
	assert.Equal(t, "HTML", c.payloads[0]["parse_mode"])
	assert.Equal(t, true, c.payloads[0]["disable_web_page_preview"])
	assert.Equal(t, "<b>Trade</b> BUY", c.payloads[0]["text"])
}

func TestSendAnalysisEscapesReport(t *testing.T) {
	n, c := newTestNotifier(t, "INFO", `{"ok":true}`, http.StatusOK)
	require.NoError(t, n.SendAnalysis(context.Background(), "s=0.1 < 0.18 & vr>1\n"))

	require.Equal(t, 1, c.count())
	assert.Equal(t, "✅ <b>SMART ANALYSIS</b>\n<pre>s=0.1 &lt; 0.18 &amp; vr&gt;1</pre>", c.payloads[0]["text"])
}

func TestSendAnalysisTruncatesLongReports(t *testing.T) {
	n, c := newTestNotifier(t, "INFO", `{"ok":true}`, http.StatusOK)
	report := strings.Repeat("reason line\n", 1000)
	require.NoError(t, n.SendAnalysis(context.Background(), report))

	text := c.payloads[0]["text"].(string)
	assert.LessOrEqual(t, len(text), maxMessageLen)
	assert.True(t, strings.HasSuffix(text, "\n...</pre>"))
}

func TestMinLevelFilter(t *testing.T) {
	n, c := newTestNotifier(t, "WARNING", `{"ok":true}`, http.StatusOK)
	ctx := context.Background()
	require.NoError(t, n.Send(ctx, "info is dropped"))
	require.NoError(t, n.SendLevel(ctx, LevelError, "error passes"))
	assert.Equal(t, 1, c.count())
}

func TestSendFailures(t *testing.T) {
	n, _ := newTestNotifier(t, "INFO", `{"ok":false,"description":"chat not found"}`, http.StatusOK)
	err := n.Send(context.Background(), "x")
	assert.ErrorContains(t, err, "chat not found")

	n, _ = newTestNotifier(t, "INFO", `{"ok":false}`, http.StatusBadRequest)
	err = n.Send(context.Background(), "x")
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestDisabledNotifierIsNoop(t *testing.T) {
	n := New(Config{Enabled: true, BotToken: "", ChatID: "1"}, xhttp.NewClient(), nil, logger.Nop())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Send(context.Background(), "x"))
	assert.NoError(t, n.SendAnalysis(context.Background(), "x"))
	assert.NoError(t, n.Ping(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarning, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelDebug, ParseLevel(" debug "))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

// Package telegram sends plain and SMART ANALYSIS messages to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/tidwall/gjson"

	domrepo "SmartTrader/internal/domain/repository"
	xhttp "SmartTrader/pkg/http"
	"SmartTrader/pkg/logger"
)

const maxMessageLen = 4096

// Level orders messages for the min-level filter.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel accepts DEBUG, INFO, WARNING (or WARN) and ERROR. Unknown values mean INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

type Config struct {
	Enabled  bool
	BaseURL  string
	BotToken string
	ChatID   string
	MinLevel string
}

var _ domrepo.Notifier = (*Notifier)(nil)

type Notifier struct {
	cfg      Config
	minLevel Level
	client   *xhttp.Client
	metrics  domrepo.Metrics
	log      *logger.Logger
}

// New returns a notifier. A disabled or incomplete config yields a notifier
// whose Enabled reports false and whose sends are no-ops.
func New(cfg Config, client *xhttp.Client, metrics domrepo.Metrics, log *logger.Logger) *Notifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	n := &Notifier{cfg: cfg, minLevel: ParseLevel(cfg.MinLevel), client: client, metrics: metrics, log: log}
	switch {
	case !cfg.Enabled:
		log.Info("telegram disabled in config")
	case cfg.BotToken == "" || cfg.ChatID == "":
		log.Warn("telegram enabled but bot_token/chat_id missing")
	}
	return n
}

func (n *Notifier) Enabled() bool {
	return n.cfg.Enabled && n.cfg.BotToken != "" && n.cfg.ChatID != ""
}

// Send delivers an INFO level HTML message.
func (n *Notifier) Send(ctx context.Context, text string) error {
	return n.SendLevel(ctx, LevelInfo, text)
}

// SendLevel drops messages below the configured minimum level.
func (n *Notifier) SendLevel(ctx context.Context, level Level, text string) error {
	if !n.Enabled() || level < n.minLevel {
		return nil
	}
	return n.sendMessage(ctx, text, "text")
}

// SendAnalysis wraps the report in a preformatted block. The report is
// escaped so that reason strings containing < or & do not break parsing.
func (n *Notifier) SendAnalysis(ctx context.Context, report string) error {
	if !n.Enabled() {
		return nil
	}
	body := html.EscapeString(strings.TrimSpace(report))
	const head, tail = "✅ <b>SMART ANALYSIS</b>\n<pre>", "</pre>"
	if room := maxMessageLen - len(head) - len(tail); len(body) > room {
		body = truncate(body, room)
	}
	return n.sendMessage(ctx, head+body+tail, "analysis")
}

// Ping sends the startup message.
func (n *Notifier) Ping(ctx context.Context) error {
	if !n.Enabled() {
		n.log.Info("telegram not configured, startup ping skipped")
		return nil
	}
	if err := n.Send(ctx, "✅ Smart Trader started."); err != nil {
		return err
	}
	n.log.Info("startup telegram ping sent")
	return nil
}

func (n *Notifier) sendMessage(ctx context.Context, text, kind string) error {
	resp, err := n.client.Do(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", n.cfg.BaseURL, n.cfg.BotToken),
		Body: map[string]any{
			"chat_id":                  n.cfg.ChatID,
			"text":                     text,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		},
	})
	if err != nil {
		n.recordError()
		return fmt.Errorf("telegram send: %w", err)
	}
	if !resp.OK() {
		n.recordError()
		return fmt.Errorf("telegram send: %w", &xhttp.StatusError{Code: resp.StatusCode, Body: string(resp.Body)})
	}
	if res := gjson.GetBytes(resp.Body, "ok"); !res.Bool() {
		n.recordError()
		return fmt.Errorf("telegram send: api refused: %s", gjson.GetBytes(resp.Body, "description").String())
	}
	if n.metrics != nil {
		n.metrics.RecordMessageSent("telegram", kind)
	}
	return nil
}

func (n *Notifier) recordError() {
	if n.metrics != nil {
		n.metrics.RecordError("telegram")
	}
}

// truncate cuts on a line boundary and never splits an escape entity.
func truncate(s string, limit int) string {
	const marker = "\n..."
	if limit <= len(marker) {
		return ""
	}
	cut := s[:limit-len(marker)]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	} else if i := strings.LastIndexByte(cut, '&'); i >= 0 && !strings.Contains(cut[i:], ";") {
		cut = cut[:i]
	}
	return cut + marker
}

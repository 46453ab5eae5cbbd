package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultSlackBaseURL = "https://slack.com/api"
	slackPageSize       = 100
	defaultSlackTimeout = 30 * time.Second
)

// toRaw converts a Slack message from the Web API or an export.
func toRaw(m slack.Msg) (RawMessage, error) {
	ts, err := ParseTS(m.Timestamp)
	if err != nil {
		return RawMessage{}, err
	}
	author := m.User
	if author == "" {
		author = m.BotID
	}
	name := m.Username
	if m.UserProfile != nil {
		if m.UserProfile.DisplayName != "" {
			name = m.UserProfile.DisplayName
		} else if m.UserProfile.RealName != "" {
			name = m.UserProfile.RealName
		}
	}
	return RawMessage{
		ID:         m.Timestamp,
		AuthorID:   author,
		AuthorName: name,
		Text:       m.Text,
		Timestamp:  ts,
		ThreadID:   m.ThreadTimestamp,
		ReplyCount: m.ReplyCount,
	}, nil
}

// skipped reports whether the message is channel noise rather than conversation.
func skipped(m slack.Msg) bool {
	switch m.SubType {
	case "channel_join", "channel_leave", "channel_topic", "channel_purpose", "channel_name":
		return true
	}
	return strings.TrimSpace(m.Text) == ""
}

// ParseTS converts a Slack timestamp ("1700000000.123456") to a time.
func ParseTS(ts string) (time.Time, error) {
	secs, frac, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slack timestamp %q", ts)
	}
	var usec int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		usec, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid slack timestamp %q", ts)
		}
	}
	return time.Unix(sec, usec*int64(time.Microsecond)).UTC(), nil
}

// FormatTS converts a time to Slack's timestamp format.
func FormatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}

// SlackConfig configures a SlackSource.
type SlackConfig struct {
	Token         string `json:"-"`
	Channel       string
	BaseURL       string
	RatePerMinute int
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// SlackSource reads channel history through the Slack Web API.
type SlackSource struct {
	client  *slack.Client
	channel string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSlackSource creates a Slack Web API source for one channel.
func NewSlackSource(cfg SlackConfig, logger *zap.Logger) (*SlackSource, error) {
	if cfg.Token == "" {
		return nil, errors.New("slack token required")
	}
	if cfg.Channel == "" {
		return nil, errors.New("slack channel required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultSlackBaseURL
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 50
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultSlackTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	client := slack.New(cfg.Token,
		slack.OptionAPIURL(baseURL+"/"),
		slack.OptionHTTPClient(httpClient),
	)
	return &SlackSource{
		client:  client,
		channel: cfg.Channel,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		logger:  logger,
	}, nil
}

// Describe identifies the channel.
func (s *SlackSource) Describe() Source {
	return Source{Kind: SourceChat, ChannelID: s.channel}
}

// History pages through conversations.history, newest first, until the
// window limit is reached or the range is exhausted.
func (s *SlackSource) History(ctx context.Context, w Window) ([]RawMessage, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: s.channel,
		Inclusive: true,
	}
	if !w.From.IsZero() {
		params.Oldest = FormatTS(w.From)
	}
	if !w.To.IsZero() {
		params.Latest = FormatTS(w.To)
	}

	var out []RawMessage
	for {
		params.Limit = slackPageSize
		if w.Limit > 0 && w.Limit-len(out) < params.Limit {
			params.Limit = w.Limit - len(out)
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := s.client.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return nil, slackError("conversations.history", err)
		}
		out = s.appendMessages(out, resp.Messages, "Skipping message with invalid timestamp")

		params.Cursor = resp.ResponseMetaData.NextCursor
		if !resp.HasMore || params.Cursor == "" || (w.Limit > 0 && len(out) >= w.Limit) {
			break
		}
	}
	if w.Limit > 0 && len(out) > w.Limit {
		out = out[:w.Limit]
	}
	return out, nil
}

// Replies returns every message of a thread, the root included.
func (s *SlackSource) Replies(ctx context.Context, threadID string) ([]RawMessage, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: s.channel,
		Timestamp: threadID,
		Limit:     slackPageSize,
	}

	var out []RawMessage
	for {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		msgs, hasMore, next, err := s.client.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, slackError("conversations.replies", err)
		}
		out = s.appendMessages(out, msgs, "Skipping reply with invalid timestamp")
		if !hasMore || next == "" {
			break
		}
		params.Cursor = next
	}
	return out, nil
}

func (s *SlackSource) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return nil
}

func (s *SlackSource) appendMessages(out []RawMessage, msgs []slack.Message, warning string) []RawMessage {
	for _, m := range msgs {
		if skipped(m.Msg) {
			continue
		}
		raw, err := toRaw(m.Msg)
		if err != nil {
			s.logger.Warn(warning, zap.String("ts", m.Timestamp))
			continue
		}
		out = append(out, raw)
	}
	return out
}

// slackError names the method and keeps the client's typed error reachable.
func slackError(method string, err error) error {
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		return fmt.Errorf("%s rate limited, retry after %s: %w", method, limited.RetryAfter, err)
	}
	return fmt.Errorf("%s failed: %w", method, err)
}

var permalinkPattern = regexp.MustCompile(`^https://([A-Za-z0-9\-]+)\.slack\.com/archives/([A-Z0-9]+)/p(\d{16})(?:\?.*)?$`)

// Permalink is a parsed Slack message link.
type Permalink struct {
	Workspace string
	Channel   string
	TS        string
	URL       string
}

// ParsePermalink parses https://<workspace>.slack.com/archives/<channel>/p<16 digits>.
func ParsePermalink(link string) (Permalink, error) {
	m := permalinkPattern.FindStringSubmatch(strings.TrimSpace(link))
	if m == nil {
		return Permalink{}, fmt.Errorf("invalid slack permalink: %q", link)
	}
	digits := m[3]
	return Permalink{
		Workspace: m[1],
		Channel:   m[2],
		TS:        digits[:10] + "." + digits[10:],
		URL:       strings.TrimSpace(link),
	}, nil
}

// ThreadSource fetches the single thread a permalink points at.
type ThreadSource struct {
	api  *SlackSource
	link Permalink

	thread []RawMessage
}

// NewThreadSource creates a source for the thread behind link. The Slack
// source must be configured for the permalink's channel.
func NewThreadSource(api *SlackSource, link Permalink) *ThreadSource {
	return &ThreadSource{api: api, link: link}
}

// Describe identifies the thread.
func (t *ThreadSource) Describe() Source {
	return Source{
		Kind:      SourceChat,
		Workspace: t.link.Workspace,
		ChannelID: t.link.Channel,
		ThreadTS:  t.link.TS,
		Permalink: t.link.URL,
	}
}

// History returns the thread root only. The window is ignored.
func (t *ThreadSource) History(ctx context.Context, _ Window) ([]RawMessage, error) {
	thread, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range thread {
		if m.ID == t.link.TS {
			root := m
			root.ThreadID = m.ID
			root.ReplyCount = len(thread) - 1
			return []RawMessage{root}, nil
		}
	}
	return nil, fmt.Errorf("thread root %s not found", t.link.TS)
}

// Replies returns the cached thread.
func (t *ThreadSource) Replies(ctx context.Context, threadID string) ([]RawMessage, error) {
	if threadID != t.link.TS {
		return t.api.Replies(ctx, threadID)
	}
	return t.load(ctx)
}

func (t *ThreadSource) load(ctx context.Context) ([]RawMessage, error) {
	if t.thread != nil {
		return t.thread, nil
	}
	thread, err := t.api.Replies(ctx, t.link.TS)
	if err != nil {
		return nil, err
	}
	t.thread = thread
	return thread, nil
}

var (
	_ ChatSource = (*SlackSource)(nil)
	_ ChatSource = (*ThreadSource)(nil)
)

package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "sigrelay/internal/transport"
	logx "sigrelay/pkg/logx"
)

// Config configures the outbound-only Telegram sender.
type Config struct {
	Token string
	// APIURL overrides the Bot API base URL (self-hosted Bot API server, tests).
	APIURL string
	// Timeout bounds each Bot API call.
	Timeout time.Duration
}

// Adapter sends messages through the Telegram Bot API. It never polls for
// updates; the bot is created offline so construction makes no network call.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

var _ kit.Sender = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Token:   strings.TrimSpace(cfg.Token),
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// chatRecipient lets telebot address chats by numeric ID or @username.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries. In HTML mode it never cuts inside a tag or an
// entity, backs off before a tag that would be left open, and when one element
// is longer than a chunk it closes the open tags and reopens them in the next
// one. Synthesized tags may push a chunk past limit by their own length;
// telegramTextLimit stays below the API maximum for that.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, tele.ModeHTML)

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	var carry []htmlTag
	start := 0
	for start < len(rs) {
		if html && len(carry) > 0 && onlyClosingTags(rs[start:]) {
			break
		}
		prefix := reopenTags(carry)
		room := max(limit-len([]rune(prefix)), limit/2, 1)
		end := min(start+room, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start+room/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
			if html {
				end = safeHTMLCut(rs, start, end, carry)
			}
		}

		body := strings.TrimRight(string(rs[start:end]), "\n")
		if html {
			open := scanTags(rs[start:end], carry)
			out = append(out, prefix+body+closeTags(open))
			carry = open
		} else {
			out = append(out, body)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

type htmlTag struct {
	name string
	raw  string
	// pos is the rune offset of '<' in the scanned segment, -1 for carried tags.
	pos int
}

// scanTags returns the tags still open after seg, starting from carry. A tag
// cut off at the end of seg is ignored.
func scanTags(seg []rune, carry []htmlTag) []htmlTag {
	open := make([]htmlTag, 0, len(carry)+2)
	for _, t := range carry {
		open = append(open, htmlTag{name: t.name, raw: t.raw, pos: -1})
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] != '<' {
			continue
		}
		j := i + 1
		for j < len(seg) && seg[j] != '>' {
			j++
		}
		if j == len(seg) {
			break
		}
		raw := string(seg[i : j+1])
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if strings.HasPrefix(inner, "/") {
			name := tagName(inner[1:])
			for k := len(open) - 1; k >= 0; k-- {
				if open[k].name == name {
					open = append(open[:k], open[k+1:]...)
					break
				}
			}
		} else if name := tagName(inner); name != "" {
			open = append(open, htmlTag{name: name, raw: raw, pos: i})
		}
		i = j
	}
	return open
}

func tagName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t\n/"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// safeHTMLCut moves end back so rs[start:end] does not stop inside a tag or
// an entity, or right after a tag opened in this chunk.
func safeHTMLCut(rs []rune, start, end int, carry []htmlTag) int {
	lastOpen, lastClose := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		}
	}
	if lastOpen > lastClose {
		if lastOpen > start {
			end = lastOpen
		} else {
			// A single tag longer than the chunk: keep it whole.
			for end < len(rs) && rs[end-1] != '>' {
				end++
			}
			return end
		}
	}

	for i := end - 1; i >= start && i >= end-10; i-- {
		if rs[i] == ';' {
			break
		}
		if rs[i] == '&' {
			if i > start {
				end = i
			}
			break
		}
	}

	open := scanTags(rs[start:end], carry)
	for _, t := range open {
		if t.pos < 0 {
			continue
		}
		if t.pos > (end-start)/3 {
			end = start + t.pos
		}
		break
	}
	return end
}

func reopenTags(tags []htmlTag) string {
	var b strings.Builder
	for _, t := range tags {
		b.WriteString(t.raw)
	}
	return b.String()
}

func closeTags(tags []htmlTag) string {
	var b strings.Builder
	for i := len(tags) - 1; i >= 0; i-- {
		b.WriteString("</" + tags[i].name + ">")
	}
	return b.String()
}

// onlyClosingTags reports whether rs holds nothing but closing tags and
// whitespace.
func onlyClosingTags(rs []rune) bool {
	s := strings.TrimSpace(string(rs))
	for s != "" {
		if !strings.HasPrefix(s, "</") {
			return false
		}
		i := strings.IndexByte(s, '>')
		if i < 0 {
			return false
		}
		s = strings.TrimSpace(s[i+1:])
	}
	return true
}

// SendText delivers text to the target chat, splitting it when it exceeds the
// Bot API message limit. The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if to.IsZero() {
		return kit.MessageRef{}, kit.ErrNotConfigured
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chatRecipient(to.ChatID), chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 && msg != nil {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	a.log.Debug("telegram message sent", logx.String("chat_id", to.ChatID), logx.Int("message_id", first.MessageID))
	return first, nil
}

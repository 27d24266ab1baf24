// Package lookup selects the verification mail a caller is waiting for from
// the current inbox listing and returns its decoded text.
package lookup

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lu0b0/2925-mail-2api/internal/observability"
	"github.com/lu0b0/2925-mail-2api/internal/platform/mail2925"
)

const DefaultMaxAge = 30 * time.Second

// MaxAgeSeconds converts a window in whole seconds to a MaxAge. Windows too
// large for a time.Duration are clamped to the largest one.
func MaxAgeSeconds(n int64) time.Duration {
	if n > math.MaxInt64/int64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n) * time.Second
}

// Inbox is the part of the provider session a lookup needs.
type Inbox interface {
	ListInbox(ctx context.Context) ([]mail2925.MailSummary, error)
	ReadMessage(ctx context.Context, id mail2925.MessageID) (string, bool, error)
}

// Criteria selects a mail. Email must equal the first recipient exactly; a
// mail then matches when BodyContent is a non-empty substring of its preview
// or when Subject equals its subject.
type Criteria struct {
	Email       string
	Subject     string
	BodyContent string
	MaxAge      time.Duration
}

type Result struct {
	Found bool
	Text  string
}

type Finder struct {
	inbox Inbox
	now   func() time.Time
	log   *observability.Logger
}

func NewFinder(inbox Inbox) *Finder {
	return &Finder{inbox: inbox, now: time.Now, log: observability.Component("lookup")}
}

// Matches reports whether entry is a candidate for c at nowMs. Entries exactly
// MaxAge old are already too old.
func Matches(entry mail2925.MailSummary, c Criteria, nowMs int64) bool {
	age := nowMs - int64(entry.CreateTime)
	if age >= c.MaxAge.Milliseconds() {
		return false
	}
	if entry.FirstRecipient() != c.Email {
		return false
	}
	if c.BodyContent != "" && strings.Contains(entry.BodyContent, c.BodyContent) {
		return true
	}
	return entry.Subject == c.Subject
}

// Find lists the inbox once and scans it in provider order. The first
// candidate whose body can be read wins; unreadable candidates are skipped and
// the scan carries on. An exhausted scan returns the zero Result.
func (f *Finder) Find(ctx context.Context, c Criteria) (_ Result, err error) {
	ctx, span := observability.StartSpan(ctx, "lookup.find", attribute.Int64("lookup.max_age_ms", c.MaxAge.Milliseconds()))
	defer func() { observability.EndSpan(span, err) }()

	mails, err := f.inbox.ListInbox(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list inbox: %w", err)
	}

	nowMs := f.now().UnixMilli()
	candidates := 0
	for _, mail := range mails {
		if !Matches(mail, c, nowMs) {
			continue
		}
		candidates++
		text, ok, err := f.inbox.ReadMessage(ctx, mail.MessageID)
		if err != nil {
			return Result{}, fmt.Errorf("read message %s: %w", mail.MessageID, err)
		}
		if !ok {
			f.log.Debug(ctx, "candidate unreadable; continuing", "message_id", string(mail.MessageID))
			continue
		}
		f.log.Info(ctx, "mail matched", "message_id", string(mail.MessageID), "scanned", len(mails), "candidates", candidates)
		span.SetAttributes(attribute.Bool("lookup.found", true))
		return Result{Found: true, Text: text}, nil
	}

	f.log.Debug(ctx, "no mail matched", "scanned", len(mails), "candidates", candidates)
	span.SetAttributes(attribute.Bool("lookup.found", false))
	return Result{}, nil
}

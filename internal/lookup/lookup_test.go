package lookup

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lu0b0/2925-mail-2api/internal/platform/mail2925"
)

var fixedNow = time.UnixMilli(1_700_000_100_000)

type fakeInbox struct {
	mails   []mail2925.MailSummary
	listErr error
	bodies  map[mail2925.MessageID]string
	readErr error

	listCalls int
	reads     []mail2925.MessageID
}

func (f *fakeInbox) ListInbox(ctx context.Context) ([]mail2925.MailSummary, error) {
	f.listCalls++
	return f.mails, f.listErr
}

func (f *fakeInbox) ReadMessage(ctx context.Context, id mail2925.MessageID) (string, bool, error) {
	f.reads = append(f.reads, id)
	if f.readErr != nil {
		return "", false, f.readErr
	}
	body, ok := f.bodies[id]
	return body, ok, nil
}

func newTestFinder(inbox Inbox) *Finder {
	f := NewFinder(inbox)
	f.now = func() time.Time { return fixedNow }
	return f
}

func mailAged(id, to, subject, preview string, age time.Duration) mail2925.MailSummary {
	return mail2925.MailSummary{
		MessageID:   mail2925.MessageID(id),
		ToAddress:   []string{to},
		Subject:     subject,
		BodyContent: preview,
		CreateTime:  mail2925.Millis(fixedNow.Add(-age).UnixMilli()),
	}
}

func TestMatches_AgeBoundary(t *testing.T) {
	c := Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: 30 * time.Second}
	nowMs := fixedNow.UnixMilli()

	atLimit := mailAged("1", "a@x.com", "Verify", "", 30*time.Second)
	if Matches(atLimit, c, nowMs) {
		t.Fatal("entry exactly max age old must not match")
	}
	justInside := mailAged("2", "a@x.com", "Verify", "", 30*time.Second-time.Millisecond)
	if !Matches(justInside, c, nowMs) {
		t.Fatal("entry one millisecond inside the window must match")
	}
}

func TestMaxAgeSeconds(t *testing.T) {
	cases := []struct {
		in   int64
		want time.Duration
	}{
		{0, 0},
		{30, 30 * time.Second},
		{math.MaxInt64 / int64(time.Second), time.Duration(math.MaxInt64/int64(time.Second)) * time.Second},
		{10_000_000_000, time.Duration(math.MaxInt64)},
		{math.MaxInt64, time.Duration(math.MaxInt64)},
	}
	for _, tc := range cases {
		if got := MaxAgeSeconds(tc.in); got != tc.want {
			t.Errorf("MaxAgeSeconds(%d) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMatches_HugeWindowMatches(t *testing.T) {
	c := Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: MaxAgeSeconds(10_000_000_000)}
	entry := mailAged("1", "a@x.com", "Verify", "", 5*time.Second)
	if !Matches(entry, c, fixedNow.UnixMilli()) {
		t.Fatal("recent entry must match under a window larger than time.Duration can hold")
	}
}

func TestMatches_FirstRecipientOnly(t *testing.T) {
	c := Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: 30 * time.Second}
	nowMs := fixedNow.UnixMilli()

	m := mailAged("1", "b@x.com", "Verify", "", time.Second)
	m.ToAddress = append(m.ToAddress, "a@x.com")
	if Matches(m, c, nowMs) {
		t.Fatal("recipient must match the first address")
	}
	m.ToAddress = nil
	if Matches(m, c, nowMs) {
		t.Fatal("entry without recipients must not match")
	}
	if Matches(mailAged("2", "A@x.com", "Verify", "", time.Second), c, nowMs) {
		t.Fatal("recipient match is exact")
	}
}

func TestMatches_BodyOrSubject(t *testing.T) {
	nowMs := fixedNow.UnixMilli()
	m := mailAged("1", "a@x.com", "Welcome", "your code is 991823", time.Second)

	cases := []struct {
		name string
		c    Criteria
		want bool
	}{
		{"body alone suffices", Criteria{Email: "a@x.com", Subject: "Verify", BodyContent: "code is", MaxAge: time.Minute}, true},
		{"subject alone suffices", Criteria{Email: "a@x.com", Subject: "Welcome", BodyContent: "nope", MaxAge: time.Minute}, true},
		{"neither", Criteria{Email: "a@x.com", Subject: "Verify", BodyContent: "nope", MaxAge: time.Minute}, false},
		{"empty body ignored", Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: time.Minute}, false},
		{"subject exact", Criteria{Email: "a@x.com", Subject: "welcome", MaxAge: time.Minute}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(m, tc.c, nowMs); got != tc.want {
				t.Fatalf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFind_EmptyInbox(t *testing.T) {
	inbox := &fakeInbox{}
	res, err := newTestFinder(inbox).Find(context.Background(), Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: DefaultMaxAge})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res.Found || res.Text != "" {
		t.Fatalf("res=%+v want zero", res)
	}
	if inbox.listCalls != 1 {
		t.Fatalf("list calls=%d want=1", inbox.listCalls)
	}
}

func TestFind_RecentMatch(t *testing.T) {
	inbox := &fakeInbox{
		mails:  []mail2925.MailSummary{mailAged("m-1", "a@x.com", "Verify", "", 5*time.Second)},
		bodies: map[mail2925.MessageID]string{"m-1": "Code: 123456"},
	}
	res, err := newTestFinder(inbox).Find(context.Background(), Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: 30 * time.Second})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !res.Found || res.Text != "Code: 123456" {
		t.Fatalf("res=%+v", res)
	}
}

func TestFind_TooOld(t *testing.T) {
	inbox := &fakeInbox{
		mails:  []mail2925.MailSummary{mailAged("m-1", "a@x.com", "Verify", "", 40*time.Second)},
		bodies: map[mail2925.MessageID]string{"m-1": "Code: 123456"},
	}
	res, err := newTestFinder(inbox).Find(context.Background(), Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: 30 * time.Second})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res.Found {
		t.Fatalf("res=%+v want no match", res)
	}
	if len(inbox.reads) != 0 {
		t.Fatalf("reads=%v, old entries must not be read", inbox.reads)
	}
}

func TestFind_SkipsUnreadableCandidate(t *testing.T) {
	inbox := &fakeInbox{
		mails: []mail2925.MailSummary{
			mailAged("m-1", "a@x.com", "Verify", "", time.Second),
			mailAged("m-x", "other@x.com", "Verify", "", time.Second),
			mailAged("m-2", "a@x.com", "Verify", "", 2*time.Second),
		},
		bodies: map[mail2925.MessageID]string{"m-2": "second"},
	}
	res, err := newTestFinder(inbox).Find(context.Background(), Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: 30 * time.Second})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !res.Found || res.Text != "second" {
		t.Fatalf("res=%+v want second candidate", res)
	}
	if len(inbox.reads) != 2 || inbox.reads[0] != "m-1" || inbox.reads[1] != "m-2" {
		t.Fatalf("reads=%v want [m-1 m-2]", inbox.reads)
	}
}

func TestFind_StopsAtFirstReadable(t *testing.T) {
	inbox := &fakeInbox{
		mails: []mail2925.MailSummary{
			mailAged("m-1", "a@x.com", "Verify", "", time.Second),
			mailAged("m-2", "a@x.com", "Verify", "", 2*time.Second),
		},
		bodies: map[mail2925.MessageID]string{"m-1": "first", "m-2": "second"},
	}
	res, err := newTestFinder(inbox).Find(context.Background(), Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: 30 * time.Second})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res.Text != "first" || len(inbox.reads) != 1 {
		t.Fatalf("res=%+v reads=%v", res, inbox.reads)
	}
}

func TestFind_AllUnreadable(t *testing.T) {
	inbox := &fakeInbox{
		mails: []mail2925.MailSummary{
			mailAged("m-1", "a@x.com", "Verify", "", time.Second),
			mailAged("m-2", "a@x.com", "Verify", "", 2*time.Second),
		},
	}
	res, err := newTestFinder(inbox).Find(context.Background(), Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: 30 * time.Second})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res.Found {
		t.Fatalf("res=%+v want no match", res)
	}
	if len(inbox.reads) != 2 {
		t.Fatalf("reads=%v want both candidates tried", inbox.reads)
	}
}

func TestFind_AuthErrorPropagates(t *testing.T) {
	inbox := &fakeInbox{listErr: mail2925.ErrAuth}
	_, err := newTestFinder(inbox).Find(context.Background(), Criteria{Email: "a@x.com", MaxAge: DefaultMaxAge})
	if !errors.Is(err, mail2925.ErrAuth) {
		t.Fatalf("err=%v want ErrAuth", err)
	}
}

func TestFind_ReadErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	inbox := &fakeInbox{
		mails:   []mail2925.MailSummary{mailAged("m-1", "a@x.com", "Verify", "", time.Second)},
		readErr: boom,
	}
	_, err := newTestFinder(inbox).Find(context.Background(), Criteria{Email: "a@x.com", Subject: "Verify", MaxAge: DefaultMaxAge})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want wrapped read error", err)
	}
}

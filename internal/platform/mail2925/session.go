package mail2925

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/lu0b0/2925-mail-2api/internal/observability"
)

const (
	DefaultBaseURL = "https://www.2925.com"

	tokenPath = "/mailv2/auth/token"
	listPath  = "/mailv2/maildata/MailList/mails"
	readPath  = "/mailv2/maildata/MailRead/mails/read"

	// tokenTimeout is sent verbatim in the token request body; the unit is the
	// provider's.
	tokenTimeout = 5000
	pageCount    = 25
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Profile    HeaderProfile
}

// Session holds the long-lived cookie and the short-lived bearer token for
// one provider account. It is safe for concurrent use; concurrent refreshes
// share one in-flight token request.
type Session struct {
	baseURL    string
	host       string
	cookie     string
	profile    HeaderProfile
	httpClient *http.Client
	log        *observability.Logger

	mu    sync.RWMutex
	token string

	refresh singleflight.Group
}

func NewSession(ctx context.Context, cookie string) (*Session, error) {
	return NewSessionWithOptions(ctx, cookie, Options{})
}

// NewSessionWithOptions builds a session and makes one attempt to obtain a
// token. A failed attempt is logged and leaves the session without a token;
// the first unauthorized listing will try again.
func NewSessionWithOptions(ctx context.Context, cookie string, opts Options) (*Session, error) {
	if cookie == "" {
		return nil, fmt.Errorf("%w: empty cookie", ErrConfig)
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid provider base url %q", base)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	profile := opts.Profile
	if profile.UserAgent == "" && profile.Accept == "" && profile.Host == "" && len(profile.Extra) == 0 {
		profile = DefaultProfile()
	}
	host := profile.Host
	if host == "" {
		host = u.Host
	}

	s := &Session{
		baseURL:    u.Scheme + "://" + u.Host,
		host:       host,
		cookie:     cookie,
		profile:    profile,
		httpClient: client,
		log:        observability.Component("mail2925.session"),
	}
	if !s.RefreshToken(ctx) {
		s.log.Warn(ctx, "initial token acquisition failed; continuing without token")
	}
	return s, nil
}

// HasToken reports whether a bearer token is currently held.
func (s *Session) HasToken() bool {
	return s.currentToken() != ""
}

func (s *Session) currentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// BuildHeaders returns the fixed header set for a provider call. The
// Authorization header is only added when withAuth is set and a token is held.
func (s *Session) BuildHeaders(withAuth bool) http.Header {
	h := http.Header{}
	s.profile.apply(h)
	h.Set("Host", s.host)
	h.Set("Cookie", s.cookie)
	h.Set("Content-Type", "application/json")
	if withAuth {
		if token := s.currentToken(); token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}
	return h
}

// errTokenRejected marks a token request the provider answered without a
// usable token, as opposed to one that never got an answer.
var errTokenRejected = errors.New("token rejected")

// RefreshToken exchanges the cookie for a new bearer token. It returns false
// and keeps the previous token when no new token could be obtained.
func (s *Session) RefreshToken(ctx context.Context) bool {
	return s.refreshToken(ctx) == nil
}

// refreshToken is RefreshToken with the failure kept: errTokenRejected when
// the provider refused, otherwise the transport or context error.
func (s *Session) refreshToken(ctx context.Context) error {
	ch := s.refresh.DoChan("token", func() (any, error) {
		return s.fetchToken(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			s.log.Warn(ctx, "token refresh failed", observability.AttrErr(res.Err), "shared", res.Shared)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) fetchToken(ctx context.Context) (_ any, err error) {
	ctx, span := observability.StartSpan(ctx, "mail2925.token")
	defer func() { observability.EndSpan(span, err) }()

	body, err := json.Marshal(map[string]int{"timeout": tokenTimeout})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}
	env, _, err := s.do(ctx, http.MethodPost, tokenPath, nil, body, false)
	if err != nil {
		return nil, err
	}
	if env.Code != codeOK {
		return nil, fmt.Errorf("%w: provider code %d", errTokenRejected, env.Code)
	}
	// An empty token on a success code is a refusal; the previous token stays.
	var token string
	if err := json.Unmarshal(env.Result, &token); err != nil || token == "" {
		return nil, fmt.Errorf("%w: missing token in result", errTokenRejected)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.log.Info(ctx, "token refreshed")
	return nil, nil
}

// ListInbox fetches the first page of the inbox. An unauthorized answer
// triggers exactly one token refresh and, if that succeeds, exactly one
// retry. A non-success code after that yields an empty listing.
func (s *Session) ListInbox(ctx context.Context) (_ []MailSummary, err error) {
	ctx, span := observability.StartSpan(ctx, "mail2925.list")
	defer func() { observability.EndSpan(span, err) }()

	query := url.Values{
		"Folder":     {"Inbox"},
		"FilterType": {"0"},
		"PageIndex":  {"1"},
		"PageCount":  {fmt.Sprint(pageCount)},
	}
	env, unauthorized, err := s.do(ctx, http.MethodGet, listPath, query, nil, true)
	if err != nil {
		return nil, err
	}
	if unauthorized {
		s.log.Info(ctx, "listing unauthorized; refreshing token")
		span.AddEvent("token_refresh")
		if err := s.refreshToken(ctx); err != nil {
			if errors.Is(err, errTokenRejected) {
				return nil, ErrAuth
			}
			return nil, fmt.Errorf("list: refresh token: %w", err)
		}
		env, _, err = s.do(ctx, http.MethodGet, listPath, query, nil, true)
		if err != nil {
			return nil, err
		}
	}
	if env.Code != codeOK {
		s.log.Debug(ctx, "listing returned non-success code", "code", env.Code)
		return []MailSummary{}, nil
	}

	var res listResult
	if len(env.Result) > 0 && !bytes.Equal(env.Result, []byte("null")) {
		if err := json.Unmarshal(env.Result, &res); err != nil {
			return nil, fmt.Errorf("list: decode result: %w", err)
		}
	}
	if res.List == nil {
		res.List = []MailSummary{}
	}
	span.SetAttributes(attribute.Int("mail.count", len(res.List)))
	return res.List, nil
}

// ReadMessage fetches one message body and returns it as plain text. The
// boolean is false when the provider did not return the message.
func (s *Session) ReadMessage(ctx context.Context, id MessageID) (_ string, _ bool, err error) {
	ctx, span := observability.StartSpan(ctx, "mail2925.read", attribute.String("mail.message_id", string(id)))
	defer func() { observability.EndSpan(span, err) }()

	query := url.Values{
		"MessageID":  {string(id)},
		"FolderName": {"Inbox"},
		"IsPre":      {"false"},
	}
	env, _, err := s.do(ctx, http.MethodGet, readPath, query, nil, false)
	if err != nil {
		return "", false, err
	}
	if env.Code != codeOK || len(env.Result) == 0 {
		return "", false, nil
	}
	var res readResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		s.log.Debug(ctx, "read result not decodable", "message_id", string(id), observability.AttrErr(err))
		return "", false, nil
	}
	text := HTMLToText(res.BodyHTMLText)
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

// do performs one provider call and decodes the envelope. unauthorized is set
// when either the HTTP status or the envelope's status_code is 401.
func (s *Session) do(ctx context.Context, method, path string, query url.Values, body []byte, withAuth bool) (envelope, bool, error) {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return envelope{}, false, fmt.Errorf("%s %s: create request: %w", method, path, err)
	}
	req.Header = s.BuildHeaders(withAuth)
	req.Host = req.Header.Get("Host")
	req.Header.Del("Host")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return envelope{}, false, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, false, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode == http.StatusUnauthorized || (decodeErr == nil && env.StatusCode == http.StatusUnauthorized) {
		return env, true, nil
	}
	if decodeErr != nil {
		return envelope{}, false, fmt.Errorf("%s %s: status %d: decode %q: %w", method, path, resp.StatusCode, truncate(string(raw), 120), decodeErr)
	}
	return env, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

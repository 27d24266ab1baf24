// Command mailcheck runs one mail lookup against the provider from a shell,
// optionally polling until the mail shows up.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lu0b0/2925-mail-2api/internal/lookup"
	"github.com/lu0b0/2925-mail-2api/internal/observability"
	"github.com/lu0b0/2925-mail-2api/internal/platform/mail2925"
)

const (
	exitFound    = 0
	exitNotFound = 1
	exitError    = 2
)

var errNotYet = errors.New("no matching mail yet")

type outputRow struct {
	Code  int    `json:"code"`
	Email string `json:"email"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mailcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "recipient address (required)")
	subject := fs.String("subject", "", "exact subject to match")
	body := fs.String("body", "", "substring of the body preview to match")
	window := fs.Int("time", 30, "max mail age in seconds")
	cookieFile := fs.String("cookie-file", envOr("COOKIE_FILE", "cookie.txt"), "file holding the provider cookie")
	baseURL := fs.String("base-url", envOr("PROVIDER_BASE_URL", mail2925.DefaultBaseURL), "provider base url")
	profilePath := fs.String("profile", os.Getenv("PROVIDER_PROFILE"), "optional TOML header profile")
	wait := fs.Duration("wait", 0, "keep polling up to this long (0 = single lookup)")
	interval := fs.Duration("interval", 3*time.Second, "delay between polls when -wait is set")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	observability.Init(observability.LogConfig{Level: *logLevel, Output: stderr})

	if *email == "" {
		fmt.Fprintln(stderr, "-email is required")
		return exitError
	}
	if *window < 0 {
		fmt.Fprintln(stderr, "-time must not be negative")
		return exitError
	}
	if *wait > 0 && *interval <= 0 {
		fmt.Fprintln(stderr, "-interval must be positive")
		return exitError
	}

	cookie, err := mail2925.LoadCredential(*cookieFile)
	if err != nil {
		fmt.Fprintf(stderr, "credential: %v\n", err)
		return exitError
	}
	profile, err := mail2925.LoadProfile(*profilePath)
	if err != nil {
		fmt.Fprintf(stderr, "header profile: %v\n", err)
		return exitError
	}
	session, err := mail2925.NewSessionWithOptions(ctx, cookie, mail2925.Options{
		BaseURL:    *baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Profile:    profile,
	})
	if err != nil {
		fmt.Fprintf(stderr, "session: %v\n", err)
		return exitError
	}

	criteria := lookup.Criteria{
		Email:       *email,
		Subject:     *subject,
		BodyContent: *body,
		MaxAge:      lookup.MaxAgeSeconds(int64(*window)),
	}
	res, err := poll(ctx, lookup.NewFinder(session), criteria, *wait, *interval)
	if err != nil && !errors.Is(err, errNotYet) {
		fmt.Fprintf(stderr, "lookup: %v\n", err)
		return exitError
	}

	row := outputRow{}
	if res.Found {
		row = outputRow{Code: 200, Email: res.Text}
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(row); err != nil {
			fmt.Fprintf(stderr, "json encode failed: %v\n", err)
			return exitError
		}
	} else if res.Found {
		fmt.Fprintln(stdout, res.Text)
	} else {
		fmt.Fprintln(stderr, "no matching mail")
	}

	if !res.Found {
		return exitNotFound
	}
	return exitFound
}

type finder interface {
	Find(ctx context.Context, c lookup.Criteria) (lookup.Result, error)
}

// poll repeats single lookups at a constant interval until one matches or
// wait elapses. Auth failures stop immediately. With wait == 0 it performs
// exactly one lookup.
func poll(ctx context.Context, f finder, c lookup.Criteria, wait, interval time.Duration) (lookup.Result, error) {
	if wait <= 0 {
		return f.Find(ctx, c)
	}
	op := func() (lookup.Result, error) {
		res, err := f.Find(ctx, c)
		switch {
		case errors.Is(err, mail2925.ErrAuth):
			return res, backoff.Permanent(err)
		case err != nil:
			return res, err
		case !res.Found:
			return res, errNotYet
		}
		return res, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(wait),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

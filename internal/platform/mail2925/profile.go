package mail2925

import (
	"fmt"
	"net/http"

	"github.com/BurntSushi/toml"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultAccept    = "application/json"
)

// HeaderProfile holds the browser-like header values the provider expects.
// They are opaque data; a profile file only replaces what it sets.
//
//	host = "www.2925.com"
//	user_agent = "Mozilla/5.0 ..."
//	accept = "application/json"
//
//	[headers]
//	Accept-Language = "zh-CN,zh;q=0.9"
type HeaderProfile struct {
	Host      string            `toml:"host"`
	UserAgent string            `toml:"user_agent"`
	Accept    string            `toml:"accept"`
	Extra     map[string]string `toml:"headers"`
}

func DefaultProfile() HeaderProfile {
	return HeaderProfile{
		UserAgent: defaultUserAgent,
		Accept:    defaultAccept,
	}
}

// LoadProfile decodes a TOML header profile on top of DefaultProfile.
// An empty path returns the defaults.
func LoadProfile(path string) (HeaderProfile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return HeaderProfile{}, fmt.Errorf("decode header profile %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return HeaderProfile{}, fmt.Errorf("header profile %s: unknown key %q", path, undecoded[0].String())
	}
	return p, nil
}

func (p HeaderProfile) apply(h http.Header) {
	for k, v := range p.Extra {
		h.Set(k, v)
	}
	if p.UserAgent != "" {
		h.Set("User-Agent", p.UserAgent)
	}
	if p.Accept != "" {
		h.Set("Accept", p.Accept)
	}
}

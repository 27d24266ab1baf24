package mail2925

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MailSummary is one row of the inbox listing.
type MailSummary struct {
	MessageID   MessageID `json:"messageId"`
	ToAddress   []string  `json:"toAddress"`
	Subject     string    `json:"subject"`
	BodyContent string    `json:"bodyContent"`
	CreateTime  Millis    `json:"createTime"`
}

// FirstRecipient returns the first address of ToAddress, or "" when the list
// is empty.
func (m MailSummary) FirstRecipient() string {
	if len(m.ToAddress) == 0 {
		return ""
	}
	return m.ToAddress[0]
}

// MessageID is the provider's opaque message identifier. The listing has been
// seen to carry it both as a JSON string and as a number.
type MessageID string

func (id *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("messageId: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

// Millis is a unix timestamp in milliseconds, accepted as a JSON number or a
// numeric string.
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*m = Millis(n)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("createTime %q: not a number", raw)
	}
	*m = Millis(int64(f))
	return nil
}

// envelope is the wrapper every provider endpoint answers with. status_code
// is only present on auth failures.
type envelope struct {
	Code       int             `json:"code"`
	StatusCode int             `json:"status_code"`
	Result     json.RawMessage `json:"result"`
}

type listResult struct {
	List []MailSummary `json:"list"`
}

type readResult struct {
	BodyHTMLText string `json:"bodyHtmlText"`
}

const codeOK = 200

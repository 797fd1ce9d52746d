package relay

import (
	"fmt"
	"strings"
)

// EmailMessage holds the structured fields of a decrypted email payload.
type EmailMessage struct {
	From    string
	To      string
	Cc      string
	Bcc     string
	Subject string
	Body    string
}

const emailFieldCount = 6

// ParseEmail splits the positional plaintext encoding
//
//	from:to:cc:bcc:subject:body
//
// cc and bcc may be empty; the body keeps any embedded colons and newlines.
func ParseEmail(plaintext string) (*EmailMessage, error) {
	parts := strings.SplitN(plaintext, ":", emailFieldCount)
	if len(parts) != emailFieldCount {
		return nil, fmt.Errorf("email payload has %d fields, expected %d (from:to:cc:bcc:subject:body)", len(parts), emailFieldCount)
	}

	msg := &EmailMessage{
		From:    strings.TrimSpace(parts[0]),
		To:      strings.TrimSpace(parts[1]),
		Cc:      strings.TrimSpace(parts[2]),
		Bcc:     strings.TrimSpace(parts[3]),
		Subject: parts[4],
		Body:    parts[5],
	}
	if msg.From == "" {
		return nil, fmt.Errorf("email payload missing sender")
	}
	if msg.To == "" {
		return nil, fmt.Errorf("email payload missing recipient")
	}
	return msg, nil
}

// RFC822 renders the message for provider submission.
func (m *EmailMessage) RFC822() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	if m.Cc != "" {
		fmt.Fprintf(&b, "Cc: %s\r\n", m.Cc)
	}
	if m.Bcc != "" {
		fmt.Fprintf(&b, "Bcc: %s\r\n", m.Bcc)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	return []byte(b.String())
}

// AccountIdentifier extracts the credential key from a decrypted payload: by
// protocol convention the plaintext starts with "account_identifier:...".
func AccountIdentifier(plaintext string) string {
	if idx := strings.IndexByte(plaintext, ':'); idx >= 0 {
		return plaintext[:idx]
	}
	return plaintext
}

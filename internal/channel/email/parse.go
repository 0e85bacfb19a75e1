package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/soyeahso/jibby/internal/domain"
)

// Parse converts a raw RFC 5322 message into a canonical message. The
// conversation id is the thread root: the first References id, else
// In-Reply-To, else the message's own Message-Id.
func Parse(raw []byte) (domain.Message, error) {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return domain.Message{}, fmt.Errorf("read message: %w", err)
	}

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(m.Header.Get("Subject"))
	if err != nil {
		subject = m.Header.Get("Subject")
	}

	messageID := m.Header.Get("Message-Id")
	inReplyTo := m.Header.Get("In-Reply-To")
	refs := strings.Fields(m.Header.Get("References"))

	conv := messageID
	switch {
	case len(refs) > 0:
		conv = refs[0]
	case inReplyTo != "":
		conv = inReplyTo
	}

	body, err := extractBody(m.Header, m.Body)
	if err != nil {
		body = ""
	}
	content := strings.TrimSpace(body)
	if content == "" {
		content = subject
	}

	ts := time.Now()
	if d, err := m.Header.Date(); err == nil {
		ts = d
	}

	return domain.Message{
		ID:             messageID,
		ConversationID: conv,
		Sender:         address(m.Header.Get("From")),
		Recipient:      address(m.Header.Get("To")),
		Content:        content,
		Channel:        domain.ChannelEmail,
		Timestamp:      ts,
		Status:         domain.StatusDelivered,
		Email: &domain.EmailMeta{
			Subject:    subject,
			MessageID:  messageID,
			InReplyTo:  inReplyTo,
			References: refs,
		},
	}, nil
}

func address(h string) string {
	if a, err := mail.ParseAddress(h); err == nil {
		return a.Address
	}
	return strings.TrimSpace(h)
}

type header interface {
	Get(key string) string
}

// extractBody returns the first text part of a message body.
func extractBody(h header, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return decodePart(h.Get("Content-Transfer-Encoding"), r)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			partType, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
			if partType == "text/plain" || partType == "" {
				// multipart.Part already decodes quoted-printable.
				b, err := io.ReadAll(p)
				if err != nil {
					continue
				}
				return string(b), nil
			}
			if strings.HasPrefix(partType, "multipart/") {
				if s, err := extractBody(p.Header, p); err == nil && s != "" {
					return s, nil
				}
			}
		}
	}
	if strings.HasPrefix(mediaType, "text/") {
		return decodePart(h.Get("Content-Transfer-Encoding"), r)
	}
	return "", fmt.Errorf("unsupported content type: %s", mediaType)
}

func decodePart(encoding string, r io.Reader) (string, error) {
	if strings.EqualFold(encoding, "quoted-printable") {
		r = quotedprintable.NewReader(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

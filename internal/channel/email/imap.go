package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/soyeahso/jibby/internal/config"
)

// Mailbox is an open, selected IMAP mailbox.
type Mailbox interface {
	// FetchUnseen returns the raw RFC 5322 source of unseen messages and
	// marks the returned ones seen.
	FetchUnseen(ctx context.Context) ([][]byte, error)
	Close() error
}

// Dialer opens the configured mailbox.
type Dialer func(ctx context.Context, cfg config.EmailConfig) (Mailbox, error)

// imapConn is the slice of *client.Client the mailbox uses.
type imapConn interface {
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Logout() error
}

type imapMailbox struct {
	c imapConn
}

// DialIMAP connects over TLS, logs in and selects the configured mailbox.
func DialIMAP(ctx context.Context, cfg config.EmailConfig) (Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort)
	c, err := client.DialTLS(addr, &tls.Config{ServerName: cfg.IMAPHost})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = config.DefaultMailbox
	}
	if _, err := c.Select(mailbox, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}
	return &imapMailbox{c: c}, nil
}

// FetchUnseen marks seen only the messages it returns. Messages skipped
// after ctx is cancelled stay unseen for the next poll.
func (m *imapMailbox) FetchUnseen(ctx context.Context) ([][]byte, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, messages)
	}()

	var out [][]byte
	taken := new(imap.SeqSet)
	for msg := range messages {
		if ctx.Err() != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		out = append(out, raw)
		taken.AddNum(msg.Uid)
	}
	fetchErr := <-done
	if fetchErr != nil {
		fetchErr = fmt.Errorf("fetch: %w", fetchErr)
	}

	if !taken.Empty() {
		flags := []interface{}{imap.SeenFlag}
		if err := m.c.UidStore(taken, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			return out, errors.Join(fetchErr, fmt.Errorf("mark seen: %w", err))
		}
	}
	if fetchErr != nil {
		return out, fetchErr
	}
	return out, ctx.Err()
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}

package imap

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"biblio/internal"
	"biblio/internal/config"
)

type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range []struct{ name, value string }{
		{"IMAP_HOST", cfg.IMAPHost},
		{"IMAP_USER", cfg.IMAPUser},
		{"IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if err := cfg.Require(req.name, req.value); err != nil {
			return nil, err
		}
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
	}, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if c.secure {
		return imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	}
	return imapclient.Dial(addr)
}

// unreadWithAttachments matches unseen multipart/mixed messages, the only
// kind that can carry a spreadsheet.
func unreadWithAttachments() *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header = textproto.MIMEHeader{}
	criteria.Header.Add("Content-Type", "multipart/mixed")
	return criteria
}

func (c *Connector) FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error) {
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, err
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, err
	}

	ids, err := client.Search(unreadWithAttachments())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	// Peek keeps the message unseen until Acknowledge.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.Fetch(seqset, items, messages) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	for msg := range messages {
		if msg == nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		out = append(out, toFetched(msg, raw))
	}
	if err := <-fetchDone; err != nil {
		return nil, err
	}

	return out, nil
}

// Acknowledge flags the given messages as seen when IMAP_MARK_SEEN is set.
// Ids of the "imap-<uid>" form address the message by uid.
func (c *Connector) Acknowledge(label string, messageIDs []string) error {
	if !c.markSeen || len(messageIDs) == 0 {
		return nil
	}

	client, err := c.dial()
	if err != nil {
		return err
	}
	defer client.Logout()

	if err := client.Login(c.user, c.password); err != nil {
		return err
	}
	if _, err := client.Select(label, false); err != nil {
		return err
	}

	uids := new(imap.SeqSet)
	for _, id := range messageIDs {
		if uid, ok := parseUIDMessageID(id); ok {
			uids.AddNum(uid)
			continue
		}
		criteria := imap.NewSearchCriteria()
		criteria.Header = textproto.MIMEHeader{}
		criteria.Header.Add("Message-Id", id)
		found, err := client.UidSearch(criteria)
		if err != nil {
			return err
		}
		uids.AddNum(found...)
	}
	if uids.Empty() {
		return nil
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return client.UidStore(uids, item, []interface{}{imap.SeenFlag}, nil)
}

func parseUIDMessageID(id string) (uint32, bool) {
	rest, ok := strings.CutPrefix(id, "imap-")
	if !ok {
		return 0, false
	}
	uid, err := strconv.ParseUint(rest, 10, 32)
	if err != nil || uid == 0 {
		return 0, false
	}
	return uint32(uid), true
}

func toFetched(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	fetched := internal.FetchedMailMessage{
		Provider:   "imap",
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if msg.Envelope != nil {
		fetched.MessageID = msg.Envelope.MessageId
		fetched.Subject = msg.Envelope.Subject
		fetched.From = formatAddresses(msg.Envelope.From)
	}
	if fetched.MessageID == "" {
		fetched.MessageID = fmt.Sprintf("imap-%d", msg.Uid)
	}
	if !msg.InternalDate.IsZero() {
		fetched.ReceivedAt = msg.InternalDate.UTC().Format(time.RFC3339)
	}
	return fetched
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(a.MailboxName+"@"+a.HostName, "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}

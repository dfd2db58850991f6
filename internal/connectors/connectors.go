package connectors

import (
	"fmt"
	"strings"

	"biblio/internal"
	"biblio/internal/config"
	gmailconnector "biblio/internal/connectors/gmail"
	imapconnector "biblio/internal/connectors/imap"
)

const (
	ProviderIMAP  = "imap"
	ProviderGmail = "gmail"
)

type MailConnector interface {
	FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error)
}

// Acknowledger is implemented by connectors that flag a message once the
// catalogue is done with it, so the mailbox stops offering it.
type Acknowledger interface {
	Acknowledge(label string, messageIDs []string) error
}

func NewConnector(cfg config.Config, provider string) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderGmail:
		return gmailconnector.NewConnector(cfg)
	case ProviderIMAP:
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}

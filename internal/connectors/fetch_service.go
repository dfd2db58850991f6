package connectors

import (
	"context"

	"biblio/internal"
	"biblio/internal/storage"
)

// FetchService pulls messages from a connector and keeps those the catalogue
// still has to process: new ones, and received or failed ones with attempts
// left.
type FetchService struct {
	store       storage.Store
	connector   MailConnector
	maxAttempts int
}

type FetchResult struct {
	Fetched int
	Claimed int
}

func NewFetchService(store storage.Store, connector MailConnector, maxAttempts int) *FetchService {
	return &FetchService{store: store, connector: connector, maxAttempts: maxAttempts}
}

func (s *FetchService) FetchPending(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return nil, FetchResult{}, err
	}

	pending := make([]internal.FetchedMailMessage, 0, len(messages))
	for _, msg := range messages {
		claimed, err := s.store.ClaimMail(ctx, msg.Provider, msg.MessageID, msg.Subject, msg.From, s.maxAttempts)
		if err != nil {
			return nil, FetchResult{}, err
		}
		if claimed {
			pending = append(pending, msg)
		}
	}

	return pending, FetchResult{Fetched: len(messages), Claimed: len(pending)}, nil
}

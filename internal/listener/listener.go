package listener

import (
	"context"
	"fmt"
	"log"
	"time"

	"biblio/internal"
	"biblio/internal/config"
	"biblio/internal/connectors"
	"biblio/internal/pipeline"
	"biblio/internal/storage"
)

type Service struct {
	store     storage.Store
	cfg       config.Config
	connector connectors.MailConnector
	fetcher   *connectors.FetchService
	importer  *pipeline.ImportService
	profile   pipeline.Profile
}

type CycleResult struct {
	Fetched  int
	Claimed  int
	Imported int
	Failed   int
	Rejected int
	Ignored  int
	Inserted int
}

func NewService(store storage.Store, cfg config.Config, connector connectors.MailConnector, profile pipeline.Profile) *Service {
	return &Service{
		store:     store,
		cfg:       cfg,
		connector: connector,
		fetcher:   connectors.NewFetchService(store, connector, cfg.MailListenerMaxAttempts),
		importer:  pipeline.NewImportService(store, cfg),
		profile:   profile,
	}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Printf("listener: cycle err=%v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce imports the spreadsheets attached to every pending mail. A mail
// whose import failed for a transient reason stays pending and is retried on
// later cycles up to MailListenerMaxAttempts; re-importing is idempotent.
func (s *Service) RunOnce(ctx context.Context) (CycleResult, error) {
	messages, fetched, err := s.fetcher.FetchPending(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}
	res := CycleResult{Fetched: fetched.Fetched, Claimed: fetched.Claimed}

	var done []string
	defer func() { s.acknowledge(done) }()

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		status, inserted := s.handle(ctx, msg)
		if ctx.Err() != nil && status == storage.MailFailed {
			// Left as received; the next cycle claims it again.
			return res, ctx.Err()
		}
		switch status {
		case storage.MailImported:
			res.Imported++
		case storage.MailIgnored:
			res.Ignored++
		case storage.MailRejected:
			res.Rejected++
		default:
			res.Failed++
		}
		res.Inserted += inserted
		if err := s.store.SetMailStatus(ctx, msg.Provider, msg.MessageID, status); err != nil {
			return res, err
		}
		if status != storage.MailFailed {
			done = append(done, msg.MessageID)
		}
	}

	log.Printf("listener: cycle done fetched=%d claimed=%d imported=%d failed=%d rejected=%d ignored=%d inserted=%d",
		res.Fetched, res.Claimed, res.Imported, res.Failed, res.Rejected, res.Ignored, res.Inserted)
	return res, nil
}

func (s *Service) acknowledge(messageIDs []string) {
	ack, ok := s.connector.(connectors.Acknowledger)
	if !ok || len(messageIDs) == 0 {
		return
	}
	if err := ack.Acknowledge(s.cfg.MailListenerLabel, messageIDs); err != nil {
		log.Printf("listener: acknowledge count=%d err=%v", len(messageIDs), err)
	}
}

// handle imports every attachment of msg. A transient failure on any of them
// wins over a rejected file, so the whole mail is retried.
func (s *Service) handle(ctx context.Context, msg internal.FetchedMailMessage) (string, int) {
	attachments, err := connectors.SpreadsheetAttachments(msg.Raw)
	if err != nil {
		log.Printf("listener: message=%s err=%v", msg.MessageID, err)
		return storage.MailRejected, 0
	}
	if len(attachments) == 0 {
		return storage.MailIgnored, 0
	}

	var failed, rejected bool
	inserted := 0
	for _, att := range attachments {
		source := fmt.Sprintf("mail:%s/%s", msg.MessageID, att.FileName)
		wb, err := pipeline.ReadWorkbook(att.FileName, att.Content)
		if err != nil {
			log.Printf("listener: source=%q err=%v", source, err)
			rejected = true
			continue
		}
		summary, err := s.importer.ImportWorkbook(ctx, source, wb, s.profile, pipeline.ImportOptions{})
		if err != nil {
			log.Printf("listener: source=%q err=%v", source, err)
			if pipeline.IsStructural(err) {
				rejected = true
			} else {
				failed = true
			}
			continue
		}
		_, n, _, _ := summary.Totals()
		inserted += n
	}

	switch {
	case failed:
		return storage.MailFailed, inserted
	case rejected:
		return storage.MailRejected, inserted
	default:
		return storage.MailImported, inserted
	}
}

package connectors

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biblio/internal"
	"biblio/internal/storage"
)

func mimeMessage(id string, parts ...[2]string) []byte {
	var b strings.Builder
	b.WriteString("From: Carole <carole@example.org>\r\n")
	b.WriteString("To: biblio@example.org\r\n")
	b.WriteString("Subject: =?UTF-8?Q?Livres_=C3=A0_ajouter?=\r\n")
	b.WriteString("Message-Id: " + id + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n\r\n")
	b.WriteString("--BOUNDARY\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nVoici la liste.\r\n")
	for _, p := range parts {
		b.WriteString("--BOUNDARY\r\n")
		b.WriteString("Content-Type: application/octet-stream; name=\"" + p[0] + "\"\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + p[0] + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(p[1])) + "\r\n")
	}
	b.WriteString("--BOUNDARY--\r\n")
	return []byte(b.String())
}

func TestSpreadsheetAttachments(t *testing.T) {
	raw := mimeMessage("<1@example.org>",
		[2]string{"livres.csv", "owner;titre;auteur\nCAROLE;La Peste;Camus\n"},
		[2]string{"photo.jpg", "not a sheet"},
		[2]string{"vieux.xls", "legacy"},
	)

	atts, err := SpreadsheetAttachments(raw)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "livres.csv", atts[0].FileName)
	assert.Contains(t, string(atts[0].Content), "La Peste")
}

func TestSpreadsheetAttachmentsPlainMail(t *testing.T) {
	raw := []byte("From: a@example.org\r\nSubject: hello\r\n\r\njust text\r\n")
	atts, err := SpreadsheetAttachments(raw)
	require.NoError(t, err)
	assert.Empty(t, atts)
}

type fakeConnector struct {
	messages []internal.FetchedMailMessage
}

func (f fakeConnector) FetchInbox(string, int) ([]internal.FetchedMailMessage, error) {
	return f.messages, nil
}

func TestFetchPendingSkipsFinishedMessages(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "books.sqlite"), storage.Options{})
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	conn := fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: ProviderIMAP, MessageID: "<1@x>"},
		{Provider: ProviderIMAP, MessageID: "<2@x>"},
	}}
	svc := NewFetchService(db, conn, 2)

	pending, res, err := svc.FetchPending(ctx, "INBOX", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Equal(t, FetchResult{Fetched: 2, Claimed: 2}, res)

	require.NoError(t, db.SetMailStatus(ctx, ProviderIMAP, "<1@x>", storage.MailImported))
	require.NoError(t, db.SetMailStatus(ctx, ProviderIMAP, "<2@x>", storage.MailFailed))

	pending, res, err = svc.FetchPending(ctx, "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "<2@x>", pending[0].MessageID)
	assert.Equal(t, FetchResult{Fetched: 2, Claimed: 1}, res)

	pending, _, err = svc.FetchPending(ctx, "INBOX", 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "attempts exhausted")
}

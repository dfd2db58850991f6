package imap

import "testing"

func TestParseUIDMessageID(t *testing.T) {
	if uid, ok := parseUIDMessageID("imap-42"); !ok || uid != 42 {
		t.Fatalf("uid=%d ok=%v", uid, ok)
	}
	for _, id := range []string{"<42@example.org>", "imap-", "imap-0", "imap-x1"} {
		if _, ok := parseUIDMessageID(id); ok {
			t.Fatalf("%q should not parse", id)
		}
	}
}

func TestUnreadWithAttachmentsCriteria(t *testing.T) {
	c := unreadWithAttachments()
	if len(c.WithoutFlags) != 1 || c.Header.Get("Content-Type") != "multipart/mixed" {
		t.Fatalf("criteria=%+v", c)
	}
}

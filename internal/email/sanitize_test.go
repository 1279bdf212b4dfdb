package email

import "testing"

func TestExtractReplyStripsQuotedOriginal(t *testing.T) {
	raw := "Sounds great, let's talk Tuesday at 2pm.\r\n\r\nOn Mon, Jan 5, 2026 at 9:12 AM Sales Team <sales@example.com> wrote:\r\n> Hi Ada,\r\n> We noticed your company is growing fast.\r\n"

	got := ExtractReply(raw)
	want := "Sounds great, let's talk Tuesday at 2pm."
	if got != want {
		t.Fatalf("ExtractReply = %q, want %q", got, want)
	}
}

func TestExtractReplyStripsQuoteLinesAndSignature(t *testing.T) {
	raw := "Works for me.\n> the original pitch\n> second quoted line\n-- \nAda Lovelace\nVP Engineering\n"

	got := ExtractReply(raw)
	if got != "Works for me." {
		t.Fatalf("ExtractReply = %q", got)
	}
}

func TestExtractReplyKeepsPlainMessage(t *testing.T) {
	raw := "Interested.\nCan you send pricing?\n"
	got := ExtractReply(raw)
	if got != "Interested.\nCan you send pricing?" {
		t.Fatalf("ExtractReply = %q", got)
	}
}

func TestIsAutoReply(t *testing.T) {
	cases := []struct {
		name    string
		from    string
		subject string
		body    string
		want    bool
	}{
		{"human reply", "ada@example.com", "Re: quick question", "Sure, let's talk.", false},
		{"out of office", "ada@example.com", "Automatic reply: quick question", "I am out of office until Monday.", true},
		{"no-reply sender", "no-reply@example.com", "Your receipt", "Thanks for your order.", true},
		{"mailer daemon", "MAILER-DAEMON@mx.example.com", "Delivery Status Notification (Failure)", "could not be delivered", true},
		{"drive share", "drive-shares-dm-noreply@google.com", "Document shared with you", "Someone shared a file on Google Drive", true},
		{"access request", "ada@example.com", "Request for access", "Ada requests access to the proposal doc", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAutoReply(tc.from, tc.subject, tc.body); got != tc.want {
				t.Fatalf("IsAutoReply(%q, %q) = %v, want %v", tc.from, tc.subject, got, tc.want)
			}
		})
	}
}

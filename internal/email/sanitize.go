package email

import (
	"regexp"
	"strings"
)

// quotedReplyPattern matches the attribution line mail clients insert above
// the quoted original ("On Mon, Jan 2, 2006 at 3:04 PM X wrote:") together
// with everything below it.
var quotedReplyPattern = regexp.MustCompile(`(?ms)^On .+? wrote:.*$`)

// autoReplyMarkers flag messages that are not a human reply. Checked
// case-insensitively against subject and body.
var autoReplyMarkers = []string{
	"out of office",
	"automatic reply",
	"automated message",
	"auto-reply",
	"autoreply",
	"do not reply",
	"delivery status notification",
	"undeliverable",
	"google drive",
	"requests access",
}

// noReplyAddressMarkers flag sender addresses that never carry a real reply.
var noReplyAddressMarkers = []string{
	"no-reply",
	"noreply",
	"mailer-daemon",
	"postmaster",
}

// ExtractReply reduces a raw reply body to the text the lead actually
// wrote. The quoted original, ">" quote lines, and the signature block
// are stripped.
func ExtractReply(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = quotedReplyPattern.ReplaceAllString(text, "")

	if idx := strings.Index(text, "\n-- \n"); idx >= 0 {
		text = text[:idx]
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// IsAutoReply reports whether a message is machine-generated noise
// (out-of-office, bounce, share notification) rather than a human reply.
func IsAutoReply(fromAddr, subject, body string) bool {
	from := strings.ToLower(fromAddr)
	for _, marker := range noReplyAddressMarkers {
		if strings.Contains(from, marker) {
			return true
		}
	}

	haystack := strings.ToLower(subject + "\n" + body)
	for _, marker := range autoReplyMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

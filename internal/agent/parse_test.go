package agent

import (
	"testing"
	"time"
)

func TestExtractJSON_FencedResponse(t *testing.T) {
	raw := "```json\n{\"score\": 0.7, \"rationale\": \"solid fit\"}\n```"
	got, err := extractJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"score": 0.7, "rationale": "solid fit"}`
	if got != want {
		t.Fatalf("unexpected extraction:\nwant: %s\ngot:  %s", want, got)
	}
}

func TestExtractJSON_ProseAroundObject(t *testing.T) {
	raw := `Sure, here is my assessment: {"found": true, "start": "2026-03-03T15:00:00Z"} hope that helps!`
	got, err := extractJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"found": true, "start": "2026-03-03T15:00:00Z"}`
	if got != want {
		t.Fatalf("unexpected extraction:\nwant: %s\ngot:  %s", want, got)
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	if _, err := extractJSON("I cannot determine a score for this lead."); err == nil {
		t.Fatalf("expected error for response without a JSON object")
	}
}

func TestDecodeJSON_PopulatesTarget(t *testing.T) {
	var resp scoreResponse
	if err := decodeJSON("```json\n{\"score\": 0.45, \"rationale\": \"ok\"}\n```", &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Score != 0.45 || resp.Rationale != "ok" {
		t.Fatalf("unexpected decode result: %+v", resp)
	}
}

func TestParseSlotText(t *testing.T) {
	// Monday morning.
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		text string
		want time.Time
	}{
		{
			name: "tomorrow with pm time",
			text: "Sounds good, let's talk tomorrow at 3pm.",
			want: time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC),
		},
		{
			name: "weekday with pm time",
			text: "How about Tuesday at 2pm?",
			want: time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "same weekday rolls a full week ahead",
			text: "Monday works for me.",
			want: time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "next week defaults to morning",
			text: "Can we do sometime next week?",
			want: time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "24h clock time",
			text: "tomorrow at 15:00 then",
			want: time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC),
		},
		{
			name: "bare small hour reads as afternoon",
			text: "tomorrow at 3?",
			want: time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC),
		},
		{
			name: "earliest weekday mention wins",
			text: "Wednesday or Thursday afternoon both work.",
			want: time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "time already past today moves to tomorrow",
			text: "today at 8am",
			want: time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseSlotText(tc.text, now)
			if !ok {
				t.Fatalf("expected a slot for %q", tc.text)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("unexpected slot for %q:\nwant: %s\ngot:  %s", tc.text, tc.want, got)
			}
		})
	}
}

func TestParseSlotText_NoDayNamed(t *testing.T) {
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	if _, ok := ParseSlotText("Thanks, but we already have a vendor.", now); ok {
		t.Fatalf("expected no slot when the reply names no day")
	}
}

package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// extractJSON pulls the first JSON object out of a model response,
// tolerating markdown fences and prose around it.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[start : end+1], nil
}

// decodeJSON unmarshals the JSON object embedded in a model response.
func decodeJSON(raw string, target interface{}) error {
	obj, err := extractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), target); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	atTimePattern    = regexp.MustCompile(`\bat\s+([0-9]{1,2})(?::([0-9]{2}))?\s*(am|pm)?\b`)
	clockTimePattern = regexp.MustCompile(`\b([0-9]{1,2}):([0-9]{2})\s*(am|pm)?\b`)
	bareMeridiemTime = regexp.MustCompile(`\b([0-9]{1,2})\s*(am|pm)\b`)
)

const defaultMeetingHour = 10

// ParseSlotText extracts a concrete meeting start from informal phrasing
// like "tomorrow at 3pm", "Tuesday at 14:00", or "next week". It returns
// false when the text names no day. Resolved times are always in the
// future relative to now.
func ParseSlotText(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)

	day, hasDay := resolveDay(lower, now)
	if !hasDay {
		return time.Time{}, false
	}

	hour, minute, hasTime := resolveTime(lower)
	if !hasTime {
		hour, minute = defaultMeetingHour, 0
	}

	slot := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	if !slot.After(now) {
		slot = slot.AddDate(0, 0, 1)
	}
	return slot, true
}

func resolveDay(lower string, now time.Time) (time.Time, bool) {
	if strings.Contains(lower, "tomorrow") {
		return now.AddDate(0, 0, 1), true
	}
	if strings.Contains(lower, "today") {
		return now, true
	}
	if strings.Contains(lower, "next week") {
		return now.AddDate(0, 0, 7), true
	}

	// Earliest weekday mention wins when several appear.
	bestIdx := -1
	var bestDay time.Weekday
	for name, weekday := range weekdays {
		idx := strings.Index(lower, name)
		if idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			bestIdx = idx
			bestDay = weekday
		}
	}
	if bestIdx < 0 {
		return time.Time{}, false
	}

	daysAhead := int(bestDay-now.Weekday()+7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	return now.AddDate(0, 0, daysAhead), true
}

func resolveTime(lower string) (int, int, bool) {
	for _, pattern := range []*regexp.Regexp{atTimePattern, clockTimePattern, bareMeridiemTime} {
		m := pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}

		hour, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		minute := 0
		meridiem := ""
		switch len(m) {
		case 4:
			if m[2] != "" {
				minute, _ = strconv.Atoi(m[2])
			}
			meridiem = m[3]
		case 3:
			meridiem = m[2]
		}

		switch meridiem {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		default:
			// "at 3" in a scheduling reply means mid-afternoon, not 3am.
			if len(m) == 4 && m[2] == "" && hour >= 1 && hour <= 7 {
				hour += 12
			}
		}

		if hour > 23 || minute > 59 {
			continue
		}
		return hour, minute, true
	}
	return 0, 0, false
}

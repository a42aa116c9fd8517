package model

import (
	"regexp"
	"strconv"
	"strings"
)

// SignalMessage is one message in a signal thread.
type SignalMessage struct {
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	AI        map[string]any `json:"ai,omitempty"`
}

// Signal is the parsed view of a queued signal thread. Parsed fields are
// best-effort: a nil pointer means the field was not derivable from the
// content, which is a valid state surfaced to the model as NOT SPECIFIED.
type Signal struct {
	ThreadID   string
	ThreadName string
	ForumName  string
	CreatedAt  string
	Messages   []SignalMessage

	Ticker       string
	Direction    string // CALL, PUT, BUY, SELL
	Strike       *float64
	EntryPrice   *float64
	TargetPrice  *float64
	StopLoss     *float64
	Expiry       string
	Confidence   *float64
	PositionSize *float64
}

// FullContent concatenates the content of every message.
func (s *Signal) FullContent() string {
	parts := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}

var (
	confidenceRe = regexp.MustCompile(`(?i)Confidence:\s*(\d+)%`)
	strikeRe     = regexp.MustCompile(`(?i)Strike(?:\s*Focus)?:\s*\$?([\d.]+)`)
	entryRe      = regexp.MustCompile(`(?i)Entry(?:\s*(?:Price|Range))?:\s*\$?([\d.]+)`)
	targetRe     = regexp.MustCompile(`(?i)(?:Target\s*1|Profit\s*Target):\s*\$?([\d.]+)`)
	stopRe       = regexp.MustCompile(`(?i)Stop\s*Loss:\s*\$?([\d.]+)`)
	sizeRe       = regexp.MustCompile(`(?i)(?:Position\s*)?Size:\s*([\d.]+)%?`)
	expiryRe     = regexp.MustCompile(`(?i)Expiry:\s*([\d-]+)`)
)

// ParseContent fills the parsed fields from the thread name and message
// bodies. Absent fields stay nil.
func (s *Signal) ParseContent() {
	if parts := strings.Fields(s.ThreadName); len(parts) > 0 {
		s.Ticker = strings.ToUpper(parts[0])
	}

	content := s.FullContent()
	if content == "" {
		return
	}

	upper := strings.ToUpper(content)
	switch {
	case strings.Contains(upper, "BUY CALLS") || strings.Contains(upper, "DIRECTION: CALL"):
		s.Direction = "CALL"
	case strings.Contains(upper, "BUY PUTS") || strings.Contains(upper, "DIRECTION: PUT"):
		s.Direction = "PUT"
	case strings.Contains(upper, "SELL"):
		s.Direction = "SELL"
	}

	if m := confidenceRe.FindStringSubmatch(content); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			v /= 100
			s.Confidence = &v
		}
	}
	s.Strike = matchFloat(strikeRe, content)
	s.EntryPrice = matchFloat(entryRe, content)
	s.TargetPrice = matchFloat(targetRe, content)
	s.StopLoss = matchFloat(stopRe, content)
	if m := sizeRe.FindStringSubmatch(content); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			v /= 100
			s.PositionSize = &v
		}
	}
	if m := expiryRe.FindStringSubmatch(content); m != nil {
		s.Expiry = m[1]
	}
}

func matchFloat(re *regexp.Regexp, content string) *float64 {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

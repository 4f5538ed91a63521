package engine

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Format discriminates raw caption payloads handed to Normalize.
type Format int

const (
	FormatVTT Format = iota
	FormatSRT
	FormatJSON3
	FormatTimedText // YouTube srv3 / legacy timedtext XML
)

func (f Format) String() string {
	switch f {
	case FormatVTT:
		return "vtt"
	case FormatSRT:
		return "srt"
	case FormatJSON3:
		return "json3"
	case FormatTimedText:
		return "timedtext"
	default:
		return "unknown"
	}
}

// DetectFormat guesses the caption format from content sniffing.
func DetectFormat(raw []byte) Format {
	head := strings.TrimSpace(string(raw[:min(len(raw), 512)]))
	switch {
	case strings.HasPrefix(head, "WEBVTT"):
		return FormatVTT
	case strings.HasPrefix(head, "{"):
		return FormatJSON3
	case strings.Contains(head, "<timedtext") || strings.Contains(head, "<transcript"):
		return FormatTimedText
	default:
		return FormatSRT
	}
}

// Normalize converts a format-tagged raw caption payload into segments.
// Cues with malformed timestamps are skipped, not zeroed; Normalize errors
// only when nothing at all could be parsed.
func Normalize(format Format, raw []byte) ([]TranscriptSegment, error) {
	var (
		segs    []TranscriptSegment
		skipped int
		err     error
	)
	switch format {
	case FormatVTT:
		segs, skipped = parseCues(string(raw), vttTimeLine)
	case FormatSRT:
		segs, skipped = parseCues(string(raw), srtTimeLine)
	case FormatJSON3:
		segs, err = parseJSON3(raw)
	case FormatTimedText:
		segs, err = parseTimedText(raw)
	default:
		return nil, fmt.Errorf("unsupported caption format %d", format)
	}
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		if skipped > 0 {
			return nil, fmt.Errorf("%s: all %d cues had malformed timestamps", format, skipped)
		}
		return nil, fmt.Errorf("%s: no cues found", format)
	}
	return segs, nil
}

var (
	// "00:00:01.000 --> 00:00:03.500" with optional VTT cue settings after.
	vttTimeLine = regexp.MustCompile(`^(\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3}\s+-->\s+((\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3})`)
	// "00:00:01,000 --> 00:00:03,500"
	srtTimeLine = regexp.MustCompile(`^(\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3}\s+-->\s+((\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3})`)

	cueArrow = regexp.MustCompile(`\s+-->\s+`)
	tagRE    = regexp.MustCompile(`<[^>]+>`)
	indexRE  = regexp.MustCompile(`^\d+$`)
	headerRE = regexp.MustCompile(`^(WEBVTT|Kind:|Language:|NOTE|STYLE)`)
)

// parseCues handles the line-oriented cue formats (VTT and SRT share the
// same block shape: optional index, timestamp line, text lines, blank line).
func parseCues(content string, timeLine *regexp.Regexp) (segs []TranscriptSegment, skipped int) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var lastText string

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || indexRE.MatchString(line) || headerRE.MatchString(line) {
			continue
		}
		if !timeLine.MatchString(line) {
			continue
		}

		parts := cueArrow.Split(line, 2)
		if len(parts) != 2 {
			skipped++
			continue
		}
		// VTT cue settings ("align:start position:0%") trail the end stamp.
		endField := strings.Fields(parts[1])
		if len(endField) == 0 {
			skipped++
			continue
		}

		start, err1 := ParseTimestamp(parts[0])
		end, err2 := ParseTimestamp(endField[0])
		if err1 != nil || err2 != nil {
			skipped++
			continue
		}

		var texts []string
		for i++; i < len(lines); i++ {
			text := strings.TrimSpace(lines[i])
			if text == "" {
				break
			}
			text = strings.TrimSpace(tagRE.ReplaceAllString(text, ""))
			// Auto-generated subs repeat the previous cue's line.
			if text != "" && text != lastText {
				texts = append(texts, text)
				lastText = text
			}
		}
		if len(texts) == 0 {
			continue
		}
		segs = append(segs, TranscriptSegment{
			Text:  html.UnescapeString(strings.Join(texts, " ")),
			Start: start,
			End:   end,
		})
	}
	return segs, skipped
}

// ParseTimestamp parses "HH:MM:SS.mmm", "MM:SS.mmm" and the comma-millis
// variants into seconds. Malformed input is an error, never silently zero.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(strings.ReplaceAll(ts, ",", "."))
	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}

	var h, m int
	var s float64
	var err error
	idx := 0
	if len(parts) == 3 {
		if h, err = strconv.Atoi(parts[0]); err != nil {
			return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		idx = 1
	}
	if m, err = strconv.Atoi(parts[idx]); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	if s, err = strconv.ParseFloat(parts[idx+1], 64); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	if h < 0 || m < 0 || m > 59 || s < 0 || s >= 60 {
		return 0, fmt.Errorf("timestamp %q out of range", ts)
	}
	return float64(h)*3600 + float64(m)*60 + s, nil
}

// FormatTimestamp renders seconds as "HH:MM:SS.mmm" (the VTT form).
func FormatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(sec*1000 + 0.5)
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// SerializeVTT renders segments back into WEBVTT. Used by tests to check the
// parse→serialize→parse round trip and by the API's transcript download.
func SerializeVTT(segs []TranscriptSegment) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	for _, s := range segs {
		fmt.Fprintf(&sb, "%s --> %s\n%s\n\n", FormatTimestamp(s.Start), FormatTimestamp(s.End), s.Text)
	}
	return sb.String()
}

// json3Payload is YouTube's JSON3 caption shape.
type json3Payload struct {
	Events []struct {
		TStartMs    int64 `json:"tStartMs"`
		DDurationMs int64 `json:"dDurationMs"`
		Segs        []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func parseJSON3(raw []byte) ([]TranscriptSegment, error) {
	var payload json3Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("json3: %w", err)
	}

	var segs []TranscriptSegment
	for _, ev := range payload.Events {
		var sb strings.Builder
		for _, s := range ev.Segs {
			sb.WriteString(s.UTF8)
		}
		text := strings.TrimSpace(strings.ReplaceAll(sb.String(), "\n", " "))
		if text == "" {
			continue
		}
		start := float64(ev.TStartMs) / 1000
		end := start + float64(ev.DDurationMs)/1000
		segs = append(segs, TranscriptSegment{Text: text, Start: start, End: end})
	}
	return segs, nil
}

// timedTextSrv3 matches <timedtext><body><p t="1360" d="1680">…</p>.
type timedTextSrv3 struct {
	Body struct {
		Lines []struct {
			T    int64  `xml:"t,attr"`
			D    int64  `xml:"d,attr"`
			Text string `xml:",chardata"`
		} `xml:"p"`
	} `xml:"body"`
}

// timedTextLegacy matches <transcript><text start="1.36" dur="1.68">…</text>.
type timedTextLegacy struct {
	Lines []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Text  string  `xml:",chardata"`
	} `xml:"text"`
}

func parseTimedText(raw []byte) ([]TranscriptSegment, error) {
	content := string(raw)

	if strings.Contains(content, "<timedtext") {
		var tt timedTextSrv3
		if err := xml.Unmarshal(raw, &tt); err != nil {
			return nil, fmt.Errorf("srv3: %w", err)
		}
		var segs []TranscriptSegment
		for _, l := range tt.Body.Lines {
			text := cleanCaptionText(l.Text)
			if text == "" {
				continue
			}
			start := float64(l.T) / 1000
			segs = append(segs, TranscriptSegment{
				Text:  text,
				Start: start,
				End:   start + float64(l.D)/1000,
			})
		}
		return segs, nil
	}

	var tt timedTextLegacy
	if err := xml.Unmarshal(raw, &tt); err != nil {
		return nil, fmt.Errorf("timedtext: %w", err)
	}
	var segs []TranscriptSegment
	for _, l := range tt.Lines {
		text := cleanCaptionText(l.Text)
		if text == "" {
			continue
		}
		segs = append(segs, TranscriptSegment{
			Text:  text,
			Start: l.Start,
			End:   l.Start + l.Dur,
		})
	}
	return segs, nil
}

func cleanCaptionText(s string) string {
	s = html.UnescapeString(s)
	s = tagRE.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

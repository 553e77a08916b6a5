package lyrics

import (
	"bufio"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// EpicThreshold is the display duration above which a line is flagged epic.
	EpicThreshold = 5.0
	// lastLineDuration is assumed for the final line, which has no successor.
	lastLineDuration = 5.0
)

type Line struct {
	Time float64 `json:"time"`
	Text string  `json:"text"`
}

// Result is the outcome of resolving one track. Exactly one of Lines or
// Plain is populated.
type Result struct {
	Lines      []Line
	Plain      string
	Provider   string
	Modified   bool
	SpeedRatio float64
}

func (r *Result) Synced() bool {
	return r != nil && len(r.Lines) > 0
}

// Text returns the lyric body as a single newline-joined block.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	if !r.Synced() {
		return r.Plain
	}
	texts := make([]string, len(r.Lines))
	for i, l := range r.Lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}

var (
	markerRe        = regexp.MustCompile(`^\[(\d{2}):(\d{2})\.(\d{2,3})\]`)
	leadingMarkerRe = regexp.MustCompile(`^(\[\d{2}:\d{2}\.\d{2,3}\])+`)
)

// ParseLRC converts LRC text into a time-sorted line sequence. Lines without a
// leading [mm:ss.xx] or [mm:ss.xxx] marker, and lines whose text is empty once
// the marker is removed, are dropped. A line carrying several leading markers
// yields one entry per marker.
func ParseLRC(lrc string) []Line {
	scanner := bufio.NewScanner(strings.NewReader(lrc))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var result []Line

	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		prefix := leadingMarkerRe.FindString(raw)
		if prefix == "" {
			continue
		}
		text := strings.TrimSpace(raw[len(prefix):])
		if text == "" {
			continue
		}
		for prefix != "" {
			match := markerRe.FindStringSubmatch(prefix)
			prefix = prefix[len(match[0]):]
			result = append(result, Line{Time: markerSeconds(match), Text: text})
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result
}

func markerSeconds(match []string) float64 {
	min, _ := strconv.Atoi(match[1])
	sec, _ := strconv.Atoi(match[2])
	ms, _ := strconv.Atoi(match[3])
	if len(match[3]) == 2 {
		ms *= 10 // .49 means 490ms
	}
	return float64(min*60+sec) + float64(ms)/1000
}

// Rescale divides every timestamp by ratio. A non-positive ratio returns an
// unchanged copy.
func Rescale(lines []Line, ratio float64) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	if ratio <= 0 || ratio == 1 {
		return out
	}
	for i := range out {
		out[i].Time = out[i].Time / ratio
	}
	return out
}

// Durations returns how long each line stays on screen: the gap to the next
// line, or a fixed guess for the last one.
func Durations(lines []Line) []float64 {
	out := make([]float64, len(lines))
	for i := range lines {
		if i < len(lines)-1 {
			out[i] = lines[i+1].Time - lines[i].Time
		} else {
			out[i] = lastLineDuration
		}
	}
	return out
}

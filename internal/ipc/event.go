package ipc

import (
	"lyricfx/internal/effects"
	"lyricfx/internal/lyrics"
)

// Event types sent to overlay clients, one JSON object per line.
const (
	EventStatus     = "status"
	EventNotFound   = "not_found"
	EventTimeline   = "timeline"
	EventPlain      = "plain"
	EventLine       = "line"
	EventStyles     = "styles"
	EventVisibility = "visibility"
)

// TimelineLine is a lyric line with its display duration.
type TimelineLine struct {
	Time        float64 `json:"time"`
	Text        string  `json:"text"`
	Translation string  `json:"translation,omitempty"`
	Duration    float64 `json:"duration"`
	Epic        bool    `json:"epic,omitempty"`
}

type Track struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Duration float64 `json:"duration"`
}

type Event struct {
	Type        string           `json:"type"`
	Cycle       string           `json:"cycle,omitempty"`
	Message     string           `json:"message,omitempty"`
	Track       *Track           `json:"track,omitempty"`
	Provider    string           `json:"provider,omitempty"`
	Lines       []TimelineLine   `json:"lines,omitempty"`
	Plain       string           `json:"plain,omitempty"`
	Translation string           `json:"translation,omitempty"`
	Translated  bool             `json:"translated,omitempty"`
	Index       *int             `json:"index,omitempty"`
	Effects     []effects.Effect `json:"effects,omitempty"`
	Styles      string           `json:"styles,omitempty"`
	Visible     *bool            `json:"visible,omitempty"`
}

func Status(cycle, msg string) Event {
	return Event{Type: EventStatus, Cycle: cycle, Message: msg}
}

func NotFound(cycle string, track Track) Event {
	return Event{Type: EventNotFound, Cycle: cycle, Track: &track, Message: "No lyrics found for " + track.Title}
}

// Timeline builds the event for a synced timeline, flagging epic lines.
// translated is either nil or aligned index for index with lines.
func Timeline(cycle, provider string, track Track, lines, translated []lyrics.Line) Event {
	durations := lyrics.Durations(lines)
	withTranslation := len(translated) == len(lines)
	out := make([]TimelineLine, len(lines))
	for i, l := range lines {
		out[i] = TimelineLine{
			Time:     l.Time,
			Text:     l.Text,
			Duration: durations[i],
			Epic:     durations[i] > lyrics.EpicThreshold,
		}
		if withTranslation {
			out[i].Translation = translated[i].Text
		}
	}
	return Event{Type: EventTimeline, Cycle: cycle, Provider: provider, Track: &track, Lines: out, Translated: withTranslation && len(lines) > 0}
}

func Plain(cycle, provider string, track Track, text, translation string) Event {
	return Event{Type: EventPlain, Cycle: cycle, Provider: provider, Track: &track, Plain: text, Translation: translation, Translated: translation != ""}
}

func Line(index int, fx []effects.Effect) Event {
	return Event{Type: EventLine, Index: &index, Effects: fx}
}

func Styles(css string) Event {
	return Event{Type: EventStyles, Styles: css}
}

func Visibility(v bool) Event {
	return Event{Type: EventVisibility, Visible: &v}
}

// Renderer consumes overlay events.
type Renderer interface {
	Send(ev Event)
}

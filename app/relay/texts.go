package relay

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Texts are the user-facing notification strings. They are printf formats rendered with an
// x/text printer so counts get locale grouping.
type Texts struct {
	Language         string `yaml:"language"`
	Saved            string `yaml:"saved"`
	ServerError      string `yaml:"server_error"`
	ConnectionFailed string `yaml:"connection_failed"`
	Watching         string `yaml:"watching"`
	Hydrated         string `yaml:"hydrated"`
	StillIncomplete  string `yaml:"still_incomplete"`
	FixedFullText    string `yaml:"fixed_full_text"`
	FixedQuote       string `yaml:"fixed_quote"`
	FixedJoiner      string `yaml:"fixed_joiner"`
}

var DefaultTexts = Texts{
	Language:         "en",
	Saved:            "Saved %d new tweets! Keep scrolling.",
	ServerError:      "Server error: %d",
	ConnectionFailed: "Connection failed. Is the Birdbrain API running?",
	Watching:         "Birdbrain is watching this tweet by @%s: it is missing %s.",
	Hydrated:         "Fixed %s for @%s.",
	StillIncomplete:  "Sent tweet by @%s, it is still incomplete.",
	FixedFullText:    "the full text",
	FixedQuote:       "the quoted tweet",
	FixedJoiner:      " and ",
}

// WithDefaults fills empty fields from DefaultTexts.
func (t Texts) WithDefaults() Texts {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&t.Language, DefaultTexts.Language)
	fill(&t.Saved, DefaultTexts.Saved)
	fill(&t.ServerError, DefaultTexts.ServerError)
	fill(&t.ConnectionFailed, DefaultTexts.ConnectionFailed)
	fill(&t.Watching, DefaultTexts.Watching)
	fill(&t.Hydrated, DefaultTexts.Hydrated)
	fill(&t.StillIncomplete, DefaultTexts.StillIncomplete)
	fill(&t.FixedFullText, DefaultTexts.FixedFullText)
	fill(&t.FixedQuote, DefaultTexts.FixedQuote)
	fill(&t.FixedJoiner, DefaultTexts.FixedJoiner)
	return t
}

func newPrinter(lang string) *message.Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

// Package nlu turns free text into an intent and a set of entities using
// deterministic pattern rules.
package nlu

import (
	"strings"
)

// Utterance is immutable once produced by Normalize.
type Utterance struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
}

var stripChars = strings.NewReplacer(
	"!", " ", "?", " ", "¡", " ", "¿", " ", ";", " ",
	"\"", " ", "'", " ", "“", " ", "”", " ",
	"(", " ", ")", " ", "[", " ", "]", " ", "{", " ", "}", " ",
	"<", " ", ">", " ", "*", " ",
)

// Normalize lower-cases the text, drops punctuation and collapses whitespace.
// Separators inside tokens ("14:00", "12/05", "1.500,00") are kept.
func Normalize(raw string) Utterance {
	text := stripChars.Replace(strings.ToLower(raw))

	fields := strings.Fields(text)
	tokens := fields[:0]
	for _, f := range fields {
		if f = strings.TrimRight(f, ",.:"); f != "" {
			tokens = append(tokens, f)
		}
	}
	return Utterance{Raw: raw, Normalized: strings.Join(tokens, " ")}
}

// Words splits the normalized text into tokens.
func (u Utterance) Words() []string {
	return strings.Fields(u.Normalized)
}

// containsPhrase matches phrase on token boundaries of normalized text.
func containsPhrase(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// phraseIndex returns the position of phrase on token boundaries, or -1.
func phraseIndex(text, phrase string) int {
	return strings.Index(" "+text+" ", " "+phrase+" ")
}

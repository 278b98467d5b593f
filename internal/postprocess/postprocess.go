// Package postprocess strips the artifacts language models leave around
// otherwise usable output: reasoning blocks, echoed instructions, and
// wrapper quotes. It runs on every generated text before it is persisted.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean returns text with model artifacts removed and whitespace trimmed.
func Clean(text string) string {
	text = stripReasoning(text)
	text = stripPreamble(text)
	text = unwrapQuotes(text)
	return strings.TrimSpace(text)
}

// Each reasoning tag variant is spelled out because RE2 has no
// backreferences.
var (
	reasoningBlockRe = regexp.MustCompile(
		`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
	)
	// An opening tag with no close means the model was cut off mid-thought;
	// everything from the tag onward is discarded.
	openReasoningRe = regexp.MustCompile(
		`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
	)
)

func stripReasoning(text string) string {
	text = reasoningBlockRe.ReplaceAllString(text, "")
	text = openReasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// preambleRes match lead-ins like "Here is the translation:" that models
// prepend despite instructions. All are anchored at the start and require a
// colon so legitimate content is left alone.
var preambleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:refined |polished |translated )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished )?(?:translation|translated text)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:refined |polished |translated )?(?:translation|text)\s*:`),
}

func stripPreamble(text string) string {
	for _, re := range preambleRes {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// unwrapQuotes removes one pair of outer quotes when they wrap the whole
// text. Straight, curly, and guillemet pairs are recognised.
func unwrapQuotes(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	pairs := map[rune]rune{
		'"':      '"',
		'\'':     '\'',
		'«':      '»',
		'“': '”',
		'‘': '’',
	}
	if closing, ok := pairs[runes[0]]; ok && runes[n-1] == closing {
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}

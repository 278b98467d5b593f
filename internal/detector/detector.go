// Package detector provides a statistical language check for translated
// output. The check is advisory: a mismatch between the detected language
// and the requested target produces a warning, never a failure, since short
// or markup-heavy chunks routinely fool the detector.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

// Detect returns the most likely language of text. ok is false when the
// detector has no confident answer.
func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lowercase ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// MatchesTarget reports whether text appears to be written in the target
// language. target may be a BCP 47 tag ("pt-BR") or a plain language name;
// when it cannot be resolved to a base language, or detection is not
// confident, the check passes.
func (d *Detector) MatchesTarget(text, target string) bool {
	detected, ok := d.DetectISO(text)
	if !ok {
		return true
	}
	tag, err := language.Parse(target)
	if err != nil {
		return true
	}
	base, conf := tag.Base()
	if conf == language.No {
		return true
	}
	return strings.EqualFold(base.String(), detected)
}

// Package command classifies transcripts into news-reader actions.
package command

import "fmt"

// Verb is a control command.
type Verb string

const (
	VerbStop     Verb = "stop"
	VerbContinue Verb = "continue"
	VerbNext     Verb = "next"
	VerbPrevious Verb = "previous"
	VerbRepeat   Verb = "repeat"
)

// Action is the result of interpreting one utterance. It is one of Control,
// SelectByNumber, SelectByFuzzyMatch or Unrecognized.
type Action interface {
	isAction()
	String() string
}

type Control struct {
	Verb Verb
}

// SelectByNumber selects articles[Index] (zero-based).
type SelectByNumber struct {
	Index int
}

// SelectByFuzzyMatch selects the best scoring title.
type SelectByFuzzyMatch struct {
	Index int
	Text  string
	Score float64
}

// Unrecognized means the user should be asked to rephrase.
type Unrecognized struct {
	Text string
}

func (Control) isAction()            {}
func (SelectByNumber) isAction()     {}
func (SelectByFuzzyMatch) isAction() {}
func (Unrecognized) isAction()       {}

func (a Control) String() string        { return "control(" + string(a.Verb) + ")" }
func (a SelectByNumber) String() string { return fmt.Sprintf("select_by_number(%d)", a.Index) }
func (a SelectByFuzzyMatch) String() string {
	return fmt.Sprintf("select_by_fuzzy_match(%d, %.1f)", a.Index, a.Score)
}
func (a Unrecognized) String() string { return "unrecognized" }

// IsSelection reports whether the action selects an article.
func IsSelection(a Action) bool {
	switch a.(type) {
	case SelectByNumber, SelectByFuzzyMatch:
		return true
	}
	return false
}

// SelectedIndex returns the article index of a selection action.
func SelectedIndex(a Action) (int, bool) {
	switch v := a.(type) {
	case SelectByNumber:
		return v.Index, true
	case SelectByFuzzyMatch:
		return v.Index, true
	}
	return 0, false
}

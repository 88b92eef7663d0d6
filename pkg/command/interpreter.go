package command

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule inspects a normalised utterance and returns an action when it applies.
type Rule struct {
	Name  string
	Apply func(text string, titles []string) (Action, bool)
}

// Interpreter evaluates its rules in order; the first rule that applies wins.
type Interpreter struct {
	tuning   Tuning
	rules    []Rule
	keywords []string
}

func NewInterpreter(t Tuning) *Interpreter {
	t = t.withDefaults()
	in := &Interpreter{tuning: t}
	for k := range t.TitleKeywords {
		in.keywords = append(in.keywords, k)
	}
	sort.Strings(in.keywords)
	in.rules = []Rule{
		{Name: "control", Apply: in.matchControl},
		{Name: "number", Apply: in.matchNumber},
		{Name: "fuzzy", Apply: in.matchFuzzy},
	}
	return in
}

func (in *Interpreter) Tuning() Tuning { return in.tuning }

// Interpret classifies text against the current article titles. The number
// of titles is the article count used for range checks.
func (in *Interpreter) Interpret(text string, titles []string) Action {
	norm := Normalize(text)
	if norm == "" {
		return Unrecognized{Text: text}
	}
	for _, r := range in.rules {
		if a, ok := r.Apply(norm, titles); ok {
			return a
		}
	}
	return Unrecognized{Text: text}
}

// Normalize lower-cases the text, collapses whitespace and strips trailing
// sentence punctuation added by recognisers.
func Normalize(text string) string {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	return strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) && r != '%'
	})
}

func (in *Interpreter) matchControl(text string, _ []string) (Action, bool) {
	for _, c := range in.tuning.Controls {
		for _, p := range c.Phrases {
			if p != "" && strings.Contains(text, p) {
				return Control{Verb: c.Verb}, true
			}
		}
	}
	return nil, false
}

// matchNumber uses only the first pattern that matches; an out-of-range
// number falls through to fuzzy matching.
func (in *Interpreter) matchNumber(text string, titles []string) (Action, bool) {
	for _, re := range in.tuning.NumberPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(titles) {
			return nil, false
		}
		return SelectByNumber{Index: n - 1}, true
	}
	return nil, false
}

func (in *Interpreter) matchFuzzy(text string, titles []string) (Action, bool) {
	best, bestScore := -1, 0.0
	for i, title := range titles {
		score := in.Score(text, title)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore <= in.tuning.MinScore {
		return nil, false
	}
	return SelectByFuzzyMatch{Index: best, Text: titles[best], Score: bestScore}, true
}

// Score rates how well a normalised utterance matches one title.
func (in *Interpreter) Score(text, title string) float64 {
	title = strings.ToLower(title)
	spoken := strings.Fields(text)
	words := strings.Fields(title)

	score := similarity(spoken, words) * in.tuning.SimilarityWeight

	for _, kw := range in.keywords {
		if !strings.Contains(title, kw) {
			continue
		}
		for _, variant := range in.tuning.TitleKeywords[kw] {
			if strings.Contains(text, variant) {
				score += in.tuning.KeywordBonus
			}
		}
	}

	for _, sw := range spoken {
		if utf8.RuneCountInString(sw) < in.tuning.MinWordLen {
			continue
		}
		for _, tw := range words {
			if strings.Contains(tw, sw) || strings.Contains(sw, tw) {
				score += in.tuning.WordBonus
			}
		}
	}
	return score
}

// similarity is the share of spoken words that overlap (substring either
// direction) any title word, relative to the longer word list.
func similarity(spoken, title []string) float64 {
	n := max(len(spoken), len(title))
	if n == 0 {
		return 0
	}
	common := 0
	for _, sw := range spoken {
		for _, tw := range title {
			if strings.Contains(tw, sw) || strings.Contains(sw, tw) {
				common++
				break
			}
		}
	}
	return float64(common) / float64(n)
}

// Phrases returns the control phrases, useful as recogniser hints.
func (in *Interpreter) Phrases() []string {
	var out []string
	for _, c := range in.tuning.Controls {
		out = append(out, c.Phrases...)
	}
	return append(out, "tin số", "bài số")
}

package command

import "regexp"

// ControlKeywords maps a verb to its trigger phrases.
type ControlKeywords struct {
	Verb    Verb
	Phrases []string
}

// Tuning holds the empirically chosen weights of the fuzzy matcher and the
// keyword tables. Zero values are replaced by defaults.
type Tuning struct {
	SimilarityWeight float64
	KeywordBonus     float64
	WordBonus        float64
	// MinScore must be strictly exceeded for a fuzzy match to be accepted.
	MinScore float64
	// MinWordLen is the rune count a spoken word needs to earn WordBonus.
	MinWordLen int

	Controls       []ControlKeywords
	NumberPatterns []*regexp.Regexp
	// TitleKeywords maps a keyword found in a title to spoken variants.
	TitleKeywords map[string][]string
}

func DefaultTuning() Tuning {
	return Tuning{
		SimilarityWeight: 10,
		KeywordBonus:     5,
		WordBonus:        2,
		MinScore:         3,
		MinWordLen:       3,
		Controls:         DefaultControls(),
		NumberPatterns:   DefaultNumberPatterns(),
		TitleKeywords:    DefaultTitleKeywords(),
	}
}

// DefaultControls is checked in order; the first verb with a matching
// phrase wins.
func DefaultControls() []ControlKeywords {
	return []ControlKeywords{
		{Verb: VerbStop, Phrases: []string{"dừng", "stop", "tạm dừng", "pause"}},
		{Verb: VerbContinue, Phrases: []string{"tiếp tục", "continue", "phát", "play"}},
		{Verb: VerbNext, Phrases: []string{"tin tiếp theo", "next", "bài tiếp theo"}},
		{Verb: VerbPrevious, Phrases: []string{"tin trước", "previous", "bài trước"}},
		{Verb: VerbRepeat, Phrases: []string{"lặp lại", "repeat", "đọc lại"}},
	}
}

func DefaultNumberPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`tin\s*số\s*(\d+)`),
		regexp.MustCompile(`bài\s*số\s*(\d+)`),
		regexp.MustCompile(`news\s*(\d+)`),
		regexp.MustCompile(`article\s*(\d+)`),
		regexp.MustCompile(`số\s*(\d+)`),
		regexp.MustCompile(`^(\d+)$`),
	}
}

func DefaultTitleKeywords() map[string][]string {
	return map[string][]string{
		"mỹ":        {"mỹ", "america", "usa"},
		"việt nam":  {"việt nam", "vietnam"},
		"trump":     {"trump", "ông trump"},
		"iran":      {"iran"},
		"thái lan":  {"thái lan", "thailand"},
		"tàu":       {"tàu", "tau"},
		"cảnh sát":  {"cảnh sát", "canh sat"},
		"bắt":       {"bắt", "bat"},
		"đường sắt": {"đường sắt", "duong sat", "đường ray"},
		"xe ôm":     {"xe ôm", "xe om", "grab"},
		"hun sen":   {"hun sen"},
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.SimilarityWeight <= 0 {
		t.SimilarityWeight = d.SimilarityWeight
	}
	if t.KeywordBonus <= 0 {
		t.KeywordBonus = d.KeywordBonus
	}
	if t.WordBonus <= 0 {
		t.WordBonus = d.WordBonus
	}
	if t.MinScore <= 0 {
		t.MinScore = d.MinScore
	}
	if t.MinWordLen <= 0 {
		t.MinWordLen = d.MinWordLen
	}
	if len(t.Controls) == 0 {
		t.Controls = d.Controls
	}
	if len(t.NumberPatterns) == 0 {
		t.NumberPatterns = d.NumberPatterns
	}
	if t.TitleKeywords == nil {
		t.TitleKeywords = d.TitleKeywords
	}
	return t
}

package profile

// Stage is one entry of the fixed study stage enumeration offered as buttons.
type Stage struct {
	Code   string
	Labels map[string]string
}

var stages = []Stage{
	{Code: "1", Labels: map[string]string{"en": "1st Year", "ru": "1-й курс"}},
	{Code: "2", Labels: map[string]string{"en": "2nd Year", "ru": "2-й курс"}},
	{Code: "3", Labels: map[string]string{"en": "3rd Year", "ru": "3-й курс"}},
	{Code: "4", Labels: map[string]string{"en": "4th Year", "ru": "4-й курс"}},
	{Code: "master", Labels: map[string]string{"en": "Master's", "ru": "Магистратура"}},
	{Code: "phd", Labels: map[string]string{"en": "PhD", "ru": "Аспирантура"}},
}

var otherStage = map[string]string{"en": "Other", "ru": "Другое"}

// Stages returns the stage enumeration in display order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// Label returns the stage label in the given language.
func (s Stage) Label(lang string) string {
	if label, ok := s.Labels[NormalizeLanguage(lang)]; ok {
		return label
	}
	return s.Labels[DefaultLanguage]
}

// StageLabel resolves a stage code to its label. Unknown codes resolve to "Other"
// and ok is false.
func StageLabel(code, lang string) (string, bool) {
	for _, s := range stages {
		if s.Code == code {
			return s.Label(lang), true
		}
	}
	return otherStage[NormalizeLanguage(lang)], false
}

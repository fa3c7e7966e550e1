package speech

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// PickVoice chooses the best voice for hint. Voices whose language matches
// the hint outrank the rest; ties go to the closest fuzzy name match. An
// empty hint or an empty list yields ok=false.
func PickVoice(hint string, voices []Voice) (Voice, bool) {
	hint = strings.TrimSpace(hint)
	if hint == "" || len(voices) == 0 {
		return Voice{}, false
	}
	lh := strings.ToLower(hint)

	for _, v := range voices {
		if strings.EqualFold(v.ID, hint) {
			return v, true
		}
	}

	names := make([]string, len(voices))
	for i, v := range voices {
		names[i] = v.Name
	}
	fuzzyScore := make(map[int]int)
	for _, m := range fuzzy.Find(hint, names) {
		fuzzyScore[m.Index] = m.Score
	}

	best, bestScore := -1, 0
	for i, v := range voices {
		score := 0
		lang := strings.ToLower(v.Lang)
		switch {
		case lang == lh:
			score += 1000
		case strings.HasPrefix(lang, lh+"-") || strings.HasPrefix(lang, lh+"_"):
			score += 500
		}
		if s, ok := fuzzyScore[i]; ok {
			score += 100 + s
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Voice{}, false
	}
	return voices[best], true
}

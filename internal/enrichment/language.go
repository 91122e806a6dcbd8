package enrichment

import (
	"strings"
	"unicode"
)

// Language is a script-detected language
type Language struct {
	Code       string
	Name       string
	Confidence float64
}

var english = Language{Code: "en", Name: "English"}

type script struct {
	code, name string
	table      *unicode.RangeTable
}

var scripts = []script{
	{"he", "Hebrew", unicode.Hebrew},
	{"ar", "Arabic", unicode.Arabic},
	{"ru", "Russian", unicode.Cyrillic},
	{"zh", "Chinese", unicode.Han},
	{"ko", "Korean", unicode.Hangul},
}

// DetectLanguage picks the dominant non-Latin script of text, defaulting to English.
// Han text containing kana is Japanese.
func DetectLanguage(text string) Language {
	text = strings.TrimSpace(text)
	if text == "" {
		return english
	}

	counts := make([]int, len(scripts))
	total, kana := 0, 0
	for _, r := range text {
		total++
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) {
			kana++
			continue
		}
		for i, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}

	best := english
	for i, s := range scripts {
		ratio := float64(counts[i]) / float64(total)
		if ratio > 0.01 && ratio > best.Confidence {
			best = Language{Code: s.code, Name: s.name, Confidence: ratio}
		}
	}

	kanaRatio := float64(kana) / float64(total)
	if kanaRatio > 0.05 && (best.Code == "zh" || best.Code == "en") {
		return Language{Code: "ja", Name: "Japanese", Confidence: best.Confidence + kanaRatio}
	}
	return best
}

// languageInstruction tells the model which language to answer in
func languageInstruction(lang Language) string {
	return "Write the sentence in " + lang.Name + "."
}

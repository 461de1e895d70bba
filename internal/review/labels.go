package review

import "fmt"

// Supported summary languages.
const (
	LangEN = "en"
	LangJA = "ja"
)

var labels = map[string]map[string]string{
	LangEN: {
		Right:               "Right hand",
		Left:                "Left hand",
		"THUMB_TIP":         "Thumb",
		"INDEX_FINGER_TIP":  "Index finger",
		"MIDDLE_FINGER_TIP": "Middle finger",
		"RING_FINGER_TIP":   "Ring finger",
		"PINKY_TIP":         "Little finger",
		"x":                 "x coordinate",
		"y":                 "y coordinate",
	},
	LangJA: {
		Right:               "右手",
		Left:                "左手",
		"THUMB_TIP":         "親指",
		"INDEX_FINGER_TIP":  "人差し指",
		"MIDDLE_FINGER_TIP": "中指",
		"RING_FINGER_TIP":   "薬指",
		"PINKY_TIP":         "小指",
		"x":                 "x座標",
		"y":                 "y座標",
	},
}

// ParseLang validates a language code. The empty string means English.
func ParseLang(lang string) (string, error) {
	if lang == "" {
		return LangEN, nil
	}
	if _, ok := labels[lang]; !ok {
		return "", fmt.Errorf("unsupported language %q", lang)
	}
	return lang, nil
}

// Label returns the display name of a hand, finger or axis. Unknown keys
// are returned unchanged.
func Label(lang, key string) string {
	if l, ok := labels[lang][key]; ok {
		return l
	}
	return key
}

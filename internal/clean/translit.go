package clean

import (
	"regexp"
	"strings"
)

// Method records how a name was resolved to its Latin form.
type Method string

const (
	MethodLatin          Method = "already_latin"
	MethodEnglishTag     Method = "english_tag"
	MethodTransliterated Method = "transliterated"
	MethodFailed         Method = "failed"
)

var (
	georgianScript = regexp.MustCompile(`[\x{10A0}-\x{10FF}]`)
	cyrillicScript = regexp.MustCompile(`[\x{0400}-\x{04FF}]`)
)

// englishTagKeys are checked in order on the raw OSM tags before falling
// back to transliteration.
var englishTagKeys = []string{"name:en", "int_name", "name_en", "official_name:en"}

var georgianToLatin = map[rune]string{
	'ა': "a", 'ბ': "b", 'გ': "g", 'დ': "d", 'ე': "e", 'ვ': "v",
	'ზ': "z", 'თ': "t", 'ი': "i", 'კ': "k", 'ლ': "l", 'მ': "m",
	'ნ': "n", 'ო': "o", 'პ': "p", 'ჟ': "zh", 'რ': "r", 'ს': "s",
	'ტ': "t", 'უ': "u", 'ფ': "p", 'ქ': "k", 'ღ': "gh", 'ყ': "q",
	'შ': "sh", 'ჩ': "ch", 'ც': "ts", 'ძ': "dz", 'წ': "ts", 'ჭ': "ch",
	'ხ': "kh", 'ჯ': "j", 'ჰ': "h",
}

var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e",
	'ё': "yo", 'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k",
	'л': "l", 'м': "m", 'н': "n", 'о': "o", 'п': "p", 'р': "r",
	'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "shch", 'ъ': "", 'ы': "y", 'ь': "",
	'э': "e", 'ю': "yu", 'я': "ya",
	'А': "A", 'Б': "B", 'В': "V", 'Г': "G", 'Д': "D", 'Е': "E",
	'Ё': "Yo", 'Ж': "Zh", 'З': "Z", 'И': "I", 'Й': "Y", 'К': "K",
	'Л': "L", 'М': "M", 'Н': "N", 'О': "O", 'П': "P", 'Р': "R",
	'С': "S", 'Т': "T", 'У': "U", 'Ф': "F", 'Х': "Kh", 'Ц': "Ts",
	'Ч': "Ch", 'Ш': "Sh", 'Щ': "Shch", 'Ъ': "", 'Ы': "Y", 'Ь': "",
	'Э': "E", 'Ю': "Yu", 'Я': "Ya",
}

// TranslationStats tallies resolution methods across a batch.
type TranslationStats struct {
	Total          int `json:"total"`
	AlreadyLatin   int `json:"already_latin"`
	EnglishTag     int `json:"english_tag"`
	Transliterated int `json:"transliterated"`
	Failed         int `json:"failed"`
}

// Translator resolves raw OSM names to Latin-script names, preferring an
// explicit English tag over machine transliteration.
type Translator struct{}

func NewTranslator() *Translator { return &Translator{} }

// Resolve returns the Latin name for a record. The empty string with
// MethodFailed means the name is in a script the translator cannot handle
// and no English tag exists; the caller should drop the record.
func (t *Translator) Resolve(name string, tags map[string]string) (string, Method) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", MethodFailed
	}
	if latinNamePattern.MatchString(name) {
		return name, MethodLatin
	}

	for _, key := range englishTagKeys {
		if english := strings.TrimSpace(tags[key]); english != "" && latinNamePattern.MatchString(english) {
			return english, MethodEnglishTag
		}
	}

	switch {
	case georgianScript.MatchString(name):
		return t.transliterate(name, georgianToLatin), MethodTransliterated
	case cyrillicScript.MatchString(name):
		return t.transliterate(name, cyrillicToLatin), MethodTransliterated
	}
	return "", MethodFailed
}

// transliterate applies the rune map, title-casing the first letter of each
// word so "თბილისი" comes out "Tbilisi", not "tbilisi".
func (t *Translator) transliterate(name string, table map[rune]string) string {
	var b strings.Builder
	for _, r := range name {
		if mapped, ok := table[r]; ok {
			b.WriteString(mapped)
		} else {
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		runes := []rune(w)
		words[i] = strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
	return strings.Join(words, " ")
}

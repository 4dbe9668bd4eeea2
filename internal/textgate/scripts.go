package textgate

import "sort"

// ScriptName identifies a writing system detected in a text span.
type ScriptName string

// Script names, keyed to the Unicode blocks they cover.
const (
	ScriptHanziKanji      ScriptName = "HANZI_KANJI"
	ScriptHiragana        ScriptName = "HIRAGANA"
	ScriptKatakana        ScriptName = "KATAKANA"
	ScriptHangul          ScriptName = "HANGUL"
	ScriptThai            ScriptName = "THAI"
	ScriptLao             ScriptName = "LAO"
	ScriptKhmer           ScriptName = "KHMER"
	ScriptBurmese         ScriptName = "BURMESE"
	ScriptBengaliAssamese ScriptName = "BENGALI_ASSAMESE"
	ScriptDevanagari      ScriptName = "DEVANAGARI"
	ScriptGujarati        ScriptName = "GUJARATI"
	ScriptGurmukhi        ScriptName = "GURMUKHI"
	ScriptOdia            ScriptName = "ODIA"
	ScriptTamil           ScriptName = "TAMIL"
	ScriptTelugu          ScriptName = "TELUGU"
	ScriptKannada         ScriptName = "KANNADA"
	ScriptMalayalam       ScriptName = "MALAYALAM"
	ScriptSinhala         ScriptName = "SINHALA"
	ScriptTibetan         ScriptName = "TIBETAN_DZONGKHA"
	ScriptArabic          ScriptName = "ARABIC"
	ScriptHebrew          ScriptName = "HEBREW"
	ScriptSyriac          ScriptName = "SYRIAC"
	ScriptArmenian        ScriptName = "ARMENIAN"
	ScriptGeorgian        ScriptName = "GEORGIAN"
	ScriptCyrillic        ScriptName = "CYRILLIC"
	ScriptThaana          ScriptName = "THAANA"
	ScriptCham            ScriptName = "CHAM"
	ScriptTaiViet         ScriptName = "TAI_VIET"
	ScriptLepcha          ScriptName = "LEPCHA"
	ScriptLimbu           ScriptName = "LIMBU"
	ScriptMeeteiMayek     ScriptName = "MEETEI_MAYEK"
	ScriptOlChiki         ScriptName = "OL_CHIKI"
	ScriptChakma          ScriptName = "CHAKMA"
)

type scriptRange struct {
	lo, hi rune
	name   ScriptName
}

// scriptRanges is kept sorted by lo so detection can binary-search.
// Chakma sits outside the BMP; iterating runes handles that for free.
var scriptRanges = []scriptRange{
	{0x0400, 0x04FF, ScriptCyrillic},
	{0x0530, 0x058F, ScriptArmenian},
	{0x0590, 0x05FF, ScriptHebrew},
	{0x0600, 0x06FF, ScriptArabic},
	{0x0700, 0x074F, ScriptSyriac},
	{0x0780, 0x07BF, ScriptThaana},
	{0x0900, 0x097F, ScriptDevanagari},
	{0x0980, 0x09FF, ScriptBengaliAssamese},
	{0x0A00, 0x0A7F, ScriptGurmukhi},
	{0x0A80, 0x0AFF, ScriptGujarati},
	{0x0B00, 0x0B7F, ScriptOdia},
	{0x0B80, 0x0BFF, ScriptTamil},
	{0x0C00, 0x0C7F, ScriptTelugu},
	{0x0C80, 0x0CFF, ScriptKannada},
	{0x0D00, 0x0D7F, ScriptMalayalam},
	{0x0D80, 0x0DFF, ScriptSinhala},
	{0x0E00, 0x0E7F, ScriptThai},
	{0x0E80, 0x0EFF, ScriptLao},
	{0x0F00, 0x0FFF, ScriptTibetan},
	{0x1000, 0x109F, ScriptBurmese},
	{0x10A0, 0x10FF, ScriptGeorgian},
	{0x1780, 0x17FF, ScriptKhmer},
	{0x1900, 0x194F, ScriptLimbu},
	{0x1C00, 0x1C4F, ScriptLepcha},
	{0x1C50, 0x1C7F, ScriptOlChiki},
	{0x3040, 0x309F, ScriptHiragana},
	{0x30A0, 0x30FF, ScriptKatakana},
	{0x4E00, 0x9FFF, ScriptHanziKanji},
	{0xAA00, 0xAA5F, ScriptCham},
	{0xAA80, 0xAADF, ScriptTaiViet},
	{0xABC0, 0xABFF, ScriptMeeteiMayek},
	{0xAC00, 0xD7AF, ScriptHangul},
	{0x11100, 0x1114F, ScriptChakma},
}

// DetectScripts returns the set of non-Latin writing systems with at least
// one matching character in text.
func DetectScripts(text string) map[ScriptName]struct{} {
	detected := make(map[ScriptName]struct{})
	for _, r := range text {
		if name, ok := lookupScript(r); ok {
			detected[name] = struct{}{}
		}
	}
	return detected
}

func lookupScript(r rune) (ScriptName, bool) {
	i := sort.Search(len(scriptRanges), func(i int) bool {
		return scriptRanges[i].hi >= r
	})
	if i < len(scriptRanges) && scriptRanges[i].lo <= r && r <= scriptRanges[i].hi {
		return scriptRanges[i].name, true
	}
	return "", false
}

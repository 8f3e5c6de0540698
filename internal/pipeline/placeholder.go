package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sautisahihi/sauticore/internal/provider"
)

// offlineMessages are the canned text payloads served when nothing better
// exists. Swahili first in spirit; English is the fallback language.
var offlineMessages = map[provider.Language]string{
	provider.LangEnglish:  "You are offline. Connect to the internet to get fresh civic updates.",
	provider.LangSwahili:  "Uko nje ya mtandao. Unganisha intaneti kupata habari mpya za kiraia.",
	provider.LangKikuyu:   "Ndukinyite internet. Ikira internet nigetha wone uhoro mweru wa kiraia.",
	provider.LangDholuo:   "Ionge gi intanet. Tudri gi intanet mondo iyud weche manyien mag piny.",
	provider.LangLuhya:    "Obula intaneti. Ikasia intaneti okhunyoola amakhuwa amayia aka civic.",
}

var permissionMessages = map[provider.Language]string{
	provider.LangEnglish:  "This service needs a valid access key. Ask the app maintainer to check the API credentials.",
	provider.LangSwahili:  "Huduma hii inahitaji ufunguo halali. Muulize msimamizi wa programu akague vitambulisho vya API.",
	provider.LangKikuyu:   "Utungata uyu wendaga kihingo kia gutonya kiega. Uria muruti wa app arore credentials cia API.",
	provider.LangDholuo:   "Tijni dwaro rayaw makare. Kwa jarit mar app mondo onon ranyisi mag API.",
	provider.LangLuhya:    "Obukhonyi buno bwenya olufungulo olulayi. Reba omulindi we app akhebe ebiminyisio bie API.",
}

// Placeholder returns the deterministic degraded payload for a capability.
// Image placeholders are seeded stock URLs so the same subject always shows
// the same picture; text and audio fall back to a canned offline message.
func Placeholder(capability, subject string, lang provider.Language) string {
	if capability == CapImage {
		return fmt.Sprintf("https://picsum.photos/seed/%s/800/450", slug(subject))
	}
	return localized(offlineMessages, lang)
}

// PermissionPayload is the user-facing message for credential failures.
func PermissionPayload(lang provider.Language) string {
	return localized(permissionMessages, lang)
}

func localized(messages map[provider.Language]string, lang provider.Language) string {
	if msg, ok := messages[lang]; ok {
		return msg
	}
	return messages[provider.LangEnglish]
}

// slug keeps letters and digits, folds everything else to single hyphens.
func slug(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "civic"
	}
	return out
}

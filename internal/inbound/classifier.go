package inbound

import (
	"strings"

	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
)

// Intent is the business action an inbound message maps to.
type Intent string

const (
	IntentConfirm        Intent = "confirm"
	IntentCancelInitiate Intent = "cancel_initiate"
	IntentCancelProceed  Intent = "cancel_proceed"
	IntentEdit           Intent = "edit"
	IntentGoBack         Intent = "go_back"
	IntentReschedule     Intent = "reschedule"
	IntentTalkToHuman    Intent = "talk_to_human"
	IntentSwitchLanguage Intent = "switch_language"
	IntentUnknown        Intent = "unknown"
)

// Classification is the outcome of classifying one inbound message.
type Classification struct {
	Intent   Intent
	Language string
}

// buttonIntents matches quick-reply button payload ids before any text
// matching happens.
var buttonIntents = map[string]Intent{
	"confirm":         IntentConfirm,
	"cancel":          IntentCancelInitiate,
	"proceed_cancel":  IntentCancelProceed,
	"edit":            IntentEdit,
	"go_back":         IntentGoBack,
	"reschedule":      IntentReschedule,
	"talk_to_human":   IntentTalkToHuman,
	"switch_language": IntentSwitchLanguage,
}

// arabicPhrases are matched exactly, case-sensitively. These mirror the
// approved Arabic button titles.
var arabicPhrases = map[string]Intent{
	"ايوه، أكد الطلب":   IntentConfirm,
	"تأكيد الطلب":       IntentConfirm,
	"لا، الغي الطلب":    IntentCancelInitiate,
	"الغاء الطلب":       IntentCancelInitiate,
	"متأكد، الغي الطلب": IntentCancelProceed,
	"تعديل الطلب":       IntentEdit,
	"رجوع":              IntentGoBack,
	"تأجيل التوصيل":     IntentReschedule,
	"كلم خدمة العملاء":  IntentTalkToHuman,
	"عربي":              IntentSwitchLanguage,
}

type matchKind int

const (
	matchExact matchKind = iota
	matchSubstring
)

type englishPhrase struct {
	phrase string
	kind   matchKind
	intent Intent
}

// englishPhrases are matched case-insensitively in order; more specific
// phrases come first so "yes, cancel" wins over "cancel".
var englishPhrases = []englishPhrase{
	{"yes, cancel", matchSubstring, IntentCancelProceed},
	{"yes cancel", matchSubstring, IntentCancelProceed},
	{"confirm", matchSubstring, IntentConfirm},
	{"cancel", matchSubstring, IntentCancelInitiate},
	{"edit order", matchSubstring, IntentEdit},
	{"edit", matchExact, IntentEdit},
	{"go back", matchSubstring, IntentGoBack},
	{"back", matchExact, IntentGoBack},
	{"reschedule", matchSubstring, IntentReschedule},
	{"talk to", matchSubstring, IntentTalkToHuman},
	{"agent", matchExact, IntentTalkToHuman},
	{"support", matchSubstring, IntentTalkToHuman},
	{"switch language", matchSubstring, IntentSwitchLanguage},
	{"english", matchExact, IntentSwitchLanguage},
}

// Classify maps an inbound message to an intent and the language the reply
// should use. Button payload ids win over titles and free text.
func Classify(msg whatsapp.ParsedInbound) Classification {
	if msg.IsButton {
		if intent, ok := buttonIntents[msg.ButtonID]; ok {
			return Classification{Intent: intent, Language: detectLanguage(msg.ButtonTitle)}
		}
		if cls := classifyText(msg.ButtonTitle); cls.Intent != IntentUnknown {
			return cls
		}
		return Classification{Intent: IntentUnknown, Language: detectLanguage(msg.ButtonTitle)}
	}
	return classifyText(msg.Text)
}

func classifyText(text string) Classification {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Classification{Intent: IntentUnknown, Language: "en"}
	}

	if intent, ok := arabicPhrases[trimmed]; ok {
		return Classification{Intent: intent, Language: "ar"}
	}

	lowered := strings.ToLower(trimmed)
	for _, p := range englishPhrases {
		switch p.kind {
		case matchExact:
			if lowered == p.phrase {
				return Classification{Intent: p.intent, Language: "en"}
			}
		case matchSubstring:
			if strings.Contains(lowered, p.phrase) {
				return Classification{Intent: p.intent, Language: "en"}
			}
		}
	}
	return Classification{Intent: IntentUnknown, Language: detectLanguage(trimmed)}
}

// detectLanguage guesses from the script: any Arabic rune means Arabic.
func detectLanguage(text string) string {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return "ar"
		}
	}
	return "en"
}

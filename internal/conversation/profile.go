package conversation

import "github.com/dipeo/dipeo/internal/domain"

// View selects which slice of the global log a memory profile exposes
// before any max_messages truncation.
type View string

const (
	ViewAllMessages      View = "all_messages"
	ViewConversationPairs View = "conversation_pairs"
	ViewSystemAndMe      View = "system_and_me"
	ViewSentToMe         View = "sent_to_me"
	ViewSentByMe         View = "sent_by_me"
)

// Settings is the resolved view+limit a MemoryProfile maps to.
type Settings struct {
	View           View
	MaxMessages    int // 0 means unlimited
	PreserveSystem bool
}

var profileSettings = map[domain.MemoryProfile]Settings{
	domain.MemoryProfileFull:     {View: ViewAllMessages, MaxMessages: 0, PreserveSystem: true},
	domain.MemoryProfileFocused:  {View: ViewConversationPairs, MaxMessages: 20, PreserveSystem: true},
	domain.MemoryProfileMinimal:  {View: ViewSystemAndMe, MaxMessages: 5, PreserveSystem: true},
	domain.MemoryProfileGoldfish: {View: ViewSentToMe, MaxMessages: 1, PreserveSystem: true},
}

// SettingsFor returns the Settings a MemoryProfile resolves to, defaulting
// to FULL for an unrecognized or empty profile.
func SettingsFor(profile domain.MemoryProfile) Settings {
	if s, ok := profileSettings[profile]; ok {
		return s
	}
	return profileSettings[domain.MemoryProfileFull]
}

// ApplyProfile narrows the full conversation log to what person sees under
// profile, prior to any memorize_to-driven selection.
func ApplyProfile(all []domain.Message, person domain.PersonID, profile domain.MemoryProfile) []domain.Message {
	settings := SettingsFor(profile)

	var view []domain.Message
	switch settings.View {
	case ViewSentToMe:
		for _, m := range all {
			if m.To == person {
				view = append(view, m)
			}
		}
	case ViewSentByMe:
		for _, m := range all {
			if m.From == person {
				view = append(view, m)
			}
		}
	case ViewSystemAndMe:
		for _, m := range all {
			if m.From == domain.SystemPersonID || m.To == person || m.From == person {
				view = append(view, m)
			}
		}
	case ViewConversationPairs, ViewAllMessages:
		for _, m := range all {
			if m.From == person || m.To == person {
				view = append(view, m)
			}
		}
	}

	if settings.MaxMessages > 0 && len(view) > settings.MaxMessages {
		view = view[len(view)-settings.MaxMessages:]
	}
	return view
}

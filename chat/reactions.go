package chat

import (
	"slices"
)

// ReactionSummary is the display state of one emoji on a message.
type ReactionSummary struct {
	Emoji         string
	Count         int
	ViewerReacted bool
}

// A ToggleAction is the effect the viewer's next click on an emoji has.
type ToggleAction int

const (
	AddReaction ToggleAction = iota
	RemoveReaction
)

func (a ToggleAction) String() string {
	if a == RemoveReaction {
		return "remove"
	}
	return "add"
}

// Reactions summarizes the reactions on m for viewerID, in the order the
// emojis appear on the message. Emojis nobody holds are skipped.
func Reactions(m Message, viewerID string) []ReactionSummary {
	out := make([]ReactionSummary, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		if len(r.Users) == 0 {
			continue
		}
		out = append(out, ReactionSummary{
			Emoji:         r.Emoji,
			Count:         len(r.Users),
			ViewerReacted: slices.Contains(r.Users, viewerID),
		})
	}
	return out
}

// ToggleDirection reports whether viewerID clicking emoji on m adds or
// removes the reaction.
func ToggleDirection(m Message, viewerID, emoji string) ToggleAction {
	for _, r := range m.Reactions {
		if r.Emoji == emoji && slices.Contains(r.Users, viewerID) {
			return RemoveReaction
		}
	}
	return AddReaction
}

// ToggleReaction returns a copy of reactions with userID's membership in
// emoji flipped. An emoji left without users is removed; a new emoji is
// appended.
func ToggleReaction(reactions []Reaction, emoji, userID string) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.Emoji != emoji {
			out = append(out, Reaction{Emoji: r.Emoji, Users: slices.Clone(r.Users)})
			continue
		}
		found = true
		users := slices.Clone(r.Users)
		if i := slices.Index(users, userID); i >= 0 {
			users = slices.Delete(users, i, i+1)
		} else {
			users = append(users, userID)
		}
		if len(users) > 0 {
			out = append(out, Reaction{Emoji: emoji, Users: users})
		}
	}
	if !found {
		out = append(out, Reaction{Emoji: emoji, Users: []string{userID}})
	}
	return out
}

// SetReaction returns a copy of reactions with userID present in or absent
// from emoji. An emoji left without users is removed.
func SetReaction(reactions []Reaction, emoji, userID string, present bool) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		users := slices.Clone(r.Users)
		if r.Emoji == emoji {
			found = true
			has := slices.Contains(users, userID)
			switch {
			case present && !has:
				users = append(users, userID)
			case !present && has:
				users = slices.DeleteFunc(users, func(u string) bool { return u == userID })
			}
			if len(users) == 0 {
				continue
			}
		}
		out = append(out, Reaction{Emoji: r.Emoji, Users: users})
	}
	if !found && present {
		out = append(out, Reaction{Emoji: emoji, Users: []string{userID}})
	}
	return out
}

package story

import "strings"

// Role is the voice identity a speaker is read with.
type Role string

const (
	RoleNarrator Role = "narrator"
	RoleHero     Role = "hero"
	RoleSidekick Role = "sidekick"
	RoleSoundFX  Role = "soundfx"
)

// SpeechRequest is what a speech backend needs to voice a page.
type SpeechRequest struct {
	Lines    []ScriptLine
	Profile  Profile
	Sidekick *Sidekick
}

// NewSpeechRequest collects the speech inputs of a page.
func NewSpeechRequest(page Page, profile Profile) SpeechRequest {
	return SpeechRequest{
		Lines:    page.Lines,
		Profile:  profile,
		Sidekick: page.Sidekick,
	}
}

// RoleOf maps a speaker onto one of the four voice identities. Speakers that
// are neither the hero nor the sidekick are read by the narrator.
func (r SpeechRequest) RoleOf(speaker string) Role {
	s := strings.TrimSpace(speaker)
	switch {
	case strings.EqualFold(s, SpeakerSoundFX):
		return RoleSoundFX
	case strings.EqualFold(s, SpeakerNarrator):
		return RoleNarrator
	case r.Profile.Name != "" && strings.EqualFold(s, r.Profile.Name):
		return RoleHero
	case strings.EqualFold(s, "sidekick"):
		return RoleSidekick
	case r.Sidekick != nil && matchesSidekick(s, r.Sidekick.Name):
		return RoleSidekick
	default:
		return RoleNarrator
	}
}

// Roles lists the distinct roles used by the request, in first-use order.
func (r SpeechRequest) Roles() []Role {
	seen := make(map[Role]bool)
	var roles []Role
	for _, l := range r.Lines {
		role := r.RoleOf(l.Speaker)
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}
	return roles
}

// Transcript renders the lines as "Speaker: text" rows.
func (r SpeechRequest) Transcript() string {
	rows := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		rows = append(rows, l.Speaker+": "+l.Text)
	}
	return strings.Join(rows, "\n")
}

// "Rusty the Robot" also answers to "Rusty".
func matchesSidekick(speaker, name string) bool {
	if name == "" {
		return false
	}
	if strings.EqualFold(speaker, name) {
		return true
	}
	first := strings.Fields(name)
	return len(first) > 0 && strings.EqualFold(speaker, first[0])
}

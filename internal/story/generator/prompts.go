package generator

import (
	"fmt"
	"strings"

	"wondertales/internal/domain/story"
)

// SystemInstruction sets the storyteller persona for a profile.
func SystemInstruction(p story.Profile) string {
	return fmt.Sprintf(`You are an expert interactive storyteller engine for a %d-year-old child.

%s

**Core Rules:**
1. **Persona**: Warm, magical, and whimsical. Never scary.
2. **Sidekick**: You MUST assign a theme-appropriate sidekick (e.g., 'Rusty the Robot' for Space, 'Bubbles the Crab' for Mermaid). They must speak in every scene.
3. **Format**: Output strictly valid JSON.
4. **Audio Design**:
   - 'SoundFX' speaker: Use for onomatopoeia (e.g., "*Click-clack*", "*Whoosh*").
   - 'ambientSound': Describe a musical, looping background track (e.g., "Playful flute music with chirping birds").
   - 'soundCue': A short visual badge text (e.g., "Forest Music").

**JSON Schema Requirements:**
- 'title': A fun, short title for this scene.
- 'lines': Array of { speaker, text }. Use '%s' for narration.
- 'choices': Exactly 2 short, fun options for the child.
- 'imagePrompt': Vibrant, 3D-animated movie style description (4:3 ratio).
- 'sidekick': { name, emoji } of the sidekick.`, p.Age, childProfile(p), story.SpeakerNarrator)
}

func childProfile(p story.Profile) string {
	return fmt.Sprintf("**Child Profile:**\n- Name: %s (Age: %d)\n- Avatar: %s\n- Theme: %s", p.Name, p.Age, p.Avatar, p.Theme)
}

// UserPrompt is the per-page instruction. The first page introduces the
// world; later pages carry the recent scenes and the child's input.
func UserPrompt(req ScriptRequest) string {
	if req.IsStart() {
		return fmt.Sprintf("Generate the first page of a story about %s in a %s world. Introduce the sidekick immediately.",
			req.Profile.Name, req.Profile.Theme)
	}

	var b strings.Builder
	b.WriteString("Continue the story based on the context below.\n\n### Previous Context\n")
	b.WriteString(FormatContext(req.History))
	b.WriteString("\n\n### User Input\n")
	if req.Audio != "" {
		b.WriteString("The child responded verbally. Listen to the audio and react naturally to what they said.")
	} else {
		fmt.Fprintf(&b, "The child chose: %q. Incorporate this choice into the narrative.", req.Choice)
	}
	return b.String()
}

// FormatContext renders pages as a short script so the model sees the flow
// of dialogue.
func FormatContext(pages []story.Page) string {
	if len(pages) == 0 {
		return "No previous context (Start of story)."
	}
	scenes := make([]string, 0, len(pages))
	for _, p := range pages {
		var b strings.Builder
		fmt.Fprintf(&b, "[Scene %d: %s]\n", p.PageNumber, p.Title)
		for _, l := range p.Lines {
			fmt.Fprintf(&b, "> %s: %s\n", l.Speaker, l.Text)
		}
		fmt.Fprintf(&b, "(Ambient: %s)", p.AmbientSound)
		scenes = append(scenes, b.String())
	}
	return strings.Join(scenes, "\n---\n")
}

func ImagePrompt(scene string, p story.Profile) string {
	return fmt.Sprintf(`**Medium**: Digital 3D Illustration (Pixar/Dreamworks style).
**Audience**: %d-year-old child.
**Subject**: %s (%s) in a %s setting.
**Scene**: %s
**Lighting**: Soft, warm, magical.
**Colors**: Vibrant and expressive.
**Composition**: Wide shot, 4:3 aspect ratio, suitable for storytelling background.`,
		p.Age, p.Name, p.Avatar, p.Theme, scene)
}

func AmbientPrompt(mood string) string {
	return fmt.Sprintf(`Generate a high-fidelity, looping ambient soundscape.
**Mood**: %s.
**Constraint**: Musical and atmospheric only. No speech. No sudden loud noises.
**Length**: 10 seconds.`, mood)
}

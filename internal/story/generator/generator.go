// Package generator produces story pages: a script first, then the
// illustration and the ambience side by side.
package generator

import (
	"context"

	"wondertales/internal/domain/story"
)

// ScriptRequest is everything the script step sees. History is already
// windowed to the most recent pages.
type ScriptRequest struct {
	Profile story.Profile
	History []story.Page
	// Choice is the option the child picked or typed. Empty on the first page.
	Choice string
	// Audio is a base64 WAV recording of the child's spoken answer. When set
	// it takes precedence over Choice.
	Audio string
}

// IsStart reports whether the request is for the first page of a story.
func (r ScriptRequest) IsStart() bool {
	return len(r.History) == 0
}

type ScriptWriter interface {
	WriteScript(ctx context.Context, req ScriptRequest) (story.Script, error)
}

// Illustrator returns an image reference (data URI or URL) for a scene.
type Illustrator interface {
	Illustrate(ctx context.Context, scene string, profile story.Profile) (string, error)
}

// AmbienceComposer returns a base64 PCM loop for a mood, or "" for none.
type AmbienceComposer interface {
	Compose(ctx context.Context, mood string) (string, error)
}

// Generator bundles the three generative calls a page needs.
type Generator interface {
	ScriptWriter
	Illustrator
	AmbienceComposer
}

package colours

import "github.com/fatih/color"

// Color scheme for the CLI
var (
	Title   = color.New(color.FgCyan, color.Bold)
	Prompt  = color.New(color.FgGreen, color.Bold)
	Error   = color.New(color.FgRed, color.Bold)
	Success = color.New(color.FgGreen)
	Info    = color.New(color.FgBlue)
	Warning = color.New(color.FgYellow)

	// Story text
	Narrator = color.New(color.FgWhite)
	Speaker  = color.New(color.FgMagenta, color.Bold)
	Sidekick = color.New(color.FgHiCyan, color.Bold)
	SoundFX  = color.New(color.FgYellow, color.Italic)
	Choice   = color.New(color.FgHiGreen)
)

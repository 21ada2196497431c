package colours

import (
	"hash/fnv"

	"github.com/fatih/color"
)

// Color scheme for the CLI
var (
	Title    = color.New(color.FgCyan, color.Bold)
	Author   = color.New(color.FgMagenta)
	Prompt   = color.New(color.FgGreen, color.Bold)
	Error    = color.New(color.FgRed, color.Bold)
	Success  = color.New(color.FgGreen)
	Info     = color.New(color.FgBlue)
	Warning  = color.New(color.FgYellow)
	System   = color.New(color.FgHiBlack, color.Italic)
	Typing   = color.New(color.FgHiBlack)
	Deceased = color.New(color.FgHiMagenta, color.Italic)
)

var speakerPalette = []*color.Color{
	color.New(color.FgHiCyan, color.Bold),
	color.New(color.FgHiYellow, color.Bold),
	color.New(color.FgHiGreen, color.Bold),
	color.New(color.FgHiMagenta, color.Bold),
	color.New(color.FgHiBlue, color.Bold),
	color.New(color.FgHiRed, color.Bold),
}

// Speaker returns the colour a speaker's name is always printed in.
func Speaker(name string) *color.Color {
	h := fnv.New32a()
	h.Write([]byte(name))
	return speakerPalette[h.Sum32()%uint32(len(speakerPalette))]
}

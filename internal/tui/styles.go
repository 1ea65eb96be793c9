package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Godot blue, the closest thing docent has to a brand color.
const godotBlue = "#478CBF"

// DOCENT wordmark (filled block style).
var docentArt = []string{
	"    ██████╗  ██████╗  ██████╗███████╗███╗   ██╗████████╗",
	"    ██╔══██╗██╔═══██╗██╔════╝██╔════╝████╗  ██║╚══██╔══╝",
	"    ██║  ██║██║   ██║██║     █████╗  ██╔██╗ ██║   ██║   ",
	"    ██║  ██║██║   ██║██║     ██╔══╝  ██║╚██╗██║   ██║   ",
	"    ██████╔╝╚██████╔╝╚██████╗███████╗██║ ╚████║   ██║   ",
	"    ╚═════╝  ╚═════╝  ╚═════╝╚══════╝╚═╝  ╚═══╝   ╚═╝   ",
}

const bannerSubtitle = "    your guide through the Godot, Terrain3D, and VoxelTools docs"

// Styles contains all lipgloss styles for the interface.
type Styles struct {
	Banner       lipgloss.Style
	Subtitle     lipgloss.Style
	User         lipgloss.Style
	Assistant    lipgloss.Style
	Marker       lipgloss.Style // Progress, route, and source affordances
	AnswerHeader lipgloss.Style
	System       lipgloss.Style
	Tips         lipgloss.Style
	Error        lipgloss.Style
	Prompt       lipgloss.Style
	Separator    lipgloss.Style // Horizontal line separator
	StatusBar    lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(godotBlue)),
		Subtitle:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		User:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(godotBlue)),
		Marker:       lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("245")),
		AnswerHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		System:       lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:         lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar:    lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
}

// RenderBanner returns the DOCENT wordmark as a styled string.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range docentArt {
		_, _ = b.WriteString(s.Banner.Render(line))
		_, _ = b.WriteString("\n")
	}
	_, _ = b.WriteString(s.Subtitle.Render(bannerSubtitle))
	_, _ = b.WriteString("\n")
	return b.String()
}

// welcomeTips contains getting started tips displayed under the banner.
var welcomeTips = []string{
	"Tips for getting started:",
	"  • Ask about nodes, shaders, terrain, voxels - anything in the docs",
	"  • Use /thread <name> to save a conversation, /threads to list them",
	"  • Use /help to see all commands",
	"  • Press Esc to cancel an answer, Ctrl+D to exit",
}

// RenderWelcomeTips returns styled welcome tips.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

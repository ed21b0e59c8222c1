package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Design System Colors - Adaptive based on terminal background
var (
	ColorPrimary   lipgloss.Color
	ColorSecondary lipgloss.Color
	ColorAccent    lipgloss.Color

	ColorSuccess lipgloss.Color
	ColorWarning lipgloss.Color
	ColorError   lipgloss.Color
	ColorInfo    lipgloss.Color

	ColorText      lipgloss.Color
	ColorTextMuted lipgloss.Color
	ColorTextDim   lipgloss.Color
	ColorBorder    lipgloss.Color
	ColorSurface   lipgloss.Color
	// ColorLocked matches the amber used for locked fields in exported documents
	ColorLocked lipgloss.Color
)

// initializeColors sets up adaptive colors based on terminal background and
// rebuilds the component styles from them
func initializeColors() {
	switch {
	case os.Getenv("GLAMOUR_STYLE") == "light":
		setLightThemeColors()
	case os.Getenv("GLAMOUR_STYLE") == "dark":
		setDarkThemeColors()
	case lipgloss.HasDarkBackground():
		setDarkThemeColors()
	default:
		setLightThemeColors()
	}
	buildStyles()
}

func setDarkThemeColors() {
	ColorPrimary = lipgloss.Color("205")   // Bright magenta/pink
	ColorSecondary = lipgloss.Color("33")  // Bright cyan/blue
	ColorAccent = lipgloss.Color("214")    // Bright orange/yellow
	ColorSuccess = lipgloss.Color("10")    // Bright green
	ColorWarning = lipgloss.Color("11")    // Bright yellow
	ColorError = lipgloss.Color("9")       // Bright red
	ColorInfo = lipgloss.Color("12")       // Bright blue
	ColorText = lipgloss.Color("252")      // Near white
	ColorTextMuted = lipgloss.Color("244") // Light gray
	ColorTextDim = lipgloss.Color("240")   // Medium gray
	ColorBorder = lipgloss.Color("238")    // Dark gray
	ColorSurface = lipgloss.Color("236")   // Slightly lighter dark gray
	ColorLocked = lipgloss.Color("220")
}

func setLightThemeColors() {
	ColorPrimary = lipgloss.Color("125")   // Darker magenta for contrast
	ColorSecondary = lipgloss.Color("24")  // Darker cyan
	ColorAccent = lipgloss.Color("130")    // Darker orange
	ColorSuccess = lipgloss.Color("22")    // Dark green
	ColorWarning = lipgloss.Color("136")   // Dark yellow/orange
	ColorError = lipgloss.Color("160")     // Dark red
	ColorInfo = lipgloss.Color("24")       // Dark blue
	ColorText = lipgloss.Color("232")      // Near black
	ColorTextMuted = lipgloss.Color("240") // Dark gray
	ColorTextDim = lipgloss.Color("244")   // Medium gray
	ColorBorder = lipgloss.Color("248")    // Light gray
	ColorSurface = lipgloss.Color("254")   // Off-white
	ColorLocked = lipgloss.Color("94")
}

// Component Styles
var (
	StyleTitle     lipgloss.Style
	StyleSubtitle  lipgloss.Style
	StyleText      lipgloss.Style
	StyleTextMuted lipgloss.Style
	StyleTextDim   lipgloss.Style

	StyleSuccess lipgloss.Style
	StyleWarning lipgloss.Style
	StyleError   lipgloss.Style
	StyleInfo    lipgloss.Style

	StyleFormLabel        lipgloss.Style
	StyleFormLabelFocused lipgloss.Style
	StyleFormHelp         lipgloss.Style
	StyleFieldError       lipgloss.Style
	StyleLockedValue      lipgloss.Style
	StyleContentContainer lipgloss.Style
	StyleMetadata         lipgloss.Style
)

func init() {
	setDarkThemeColors()
	buildStyles()
}

func buildStyles() {
	StyleTitle = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Padding(0, 1)
	StyleSubtitle = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true).Padding(0, 1)
	StyleText = lipgloss.NewStyle().Foreground(ColorText)
	StyleTextMuted = lipgloss.NewStyle().Foreground(ColorTextMuted)
	StyleTextDim = lipgloss.NewStyle().Foreground(ColorTextDim)

	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true).Padding(0, 1)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true).Padding(0, 1)
	StyleError = lipgloss.NewStyle().Foreground(ColorError).Bold(true).Padding(0, 1)
	StyleInfo = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true).Padding(0, 1)

	StyleFormLabel = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleFormLabelFocused = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	StyleFormHelp = lipgloss.NewStyle().Foreground(ColorTextDim).Italic(true).PaddingLeft(2)
	StyleFieldError = lipgloss.NewStyle().Foreground(ColorError).PaddingLeft(2)
	StyleLockedValue = lipgloss.NewStyle().
		Foreground(ColorLocked).
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(ColorLocked).
		PaddingLeft(1)

	StyleContentContainer = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)

	StyleMetadata = lipgloss.NewStyle().Foreground(ColorTextDim).Padding(0, 1)
}

// CreateHeader renders a page title with an optional subtitle
func CreateHeader(titleText, subtitle string) string {
	title := StyleTitle.Render(titleText)
	if subtitle == "" {
		return title
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, title, StyleTextMuted.Render(subtitle))
}

// CreateContextualHelp renders the essential keybinds on one row and, when
// expanded, each additional row below it
func CreateContextualHelp(essential []string, additional []string, showExpanded bool, width int) string {
	firstRow := append([]string{}, essential...)
	if len(additional) > 0 && !showExpanded {
		firstRow = append(firstRow, "ctrl+g more")
	}

	lines := []string{truncate(strings.Join(firstRow, " • "), width)}
	if showExpanded {
		for _, row := range additional {
			lines = append(lines, truncate(row, width))
		}
	}
	return StyleTextDim.Render(strings.Join(lines, "\n"))
}

func truncate(text string, width int) string {
	if width > 7 && len(text) > width-4 {
		return text[:width-7] + "..."
	}
	return text
}

// CreateStatus renders a status message in the colour of its kind
func CreateStatus(text string, statusType string) string {
	switch statusType {
	case "success":
		return StyleSuccess.Render(text)
	case "warning":
		return StyleWarning.Render(text)
	case "error":
		return StyleError.Render(text)
	case "info":
		return StyleInfo.Render(text)
	default:
		return StyleText.Render(text)
	}
}

// AddFormPadding indents form content
func AddFormPadding(content string) string {
	return lipgloss.NewStyle().PaddingLeft(3).Render(content)
}

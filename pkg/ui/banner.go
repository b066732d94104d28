package ui

import "strings"

const (
	reset       = "\033[0m"
	bold        = "\033[1m"
	emberRed    = "\033[38;5;203m"
	flameOrange = "\033[38;5;208m"
	voltYellow  = "\033[38;5;226m"
	chargeGreen = "\033[38;5;121m"
	arcBlue     = "\033[38;5;33m"
	plugViolet  = "\033[38;5;141m"
)

// Banner renders a colored watt wordmark.
func Banner() string {
	var b strings.Builder

	wattLetters := [][]string{
		{"██╗    ██╗", "██║    ██║", "██║ █╗ ██║", "██║███╗██║", "╚███╔███╔╝", " ╚══╝╚══╝ "},
		{" █████╗ ", "██╔══██╗", "███████║", "██╔══██║", "██║  ██║", "╚═╝  ╚═╝"},
		{"████████╗", "╚══██╔══╝", "   ██║   ", "   ██║   ", "   ██║   ", "   ╚═╝   "},
		{"████████╗", "╚══██╔══╝", "   ██║   ", "   ██║   ", "   ██║   ", "   ╚═╝   "},
	}
	wattGradient := []string{emberRed, flameOrange, voltYellow, chargeGreen, arcBlue, plugViolet}
	wattRows := make([]string, len(wattLetters[0]))
	for i, letter := range wattLetters {
		color := wattGradient[i%len(wattGradient)]
		for row := 0; row < len(letter); row++ {
			wattRows[row] += color + letter[row] + "  "
		}
	}
	for _, line := range wattRows {
		b.WriteString(bold + line + reset + "\n")
	}

	b.WriteString("\n")
	b.WriteString(bold + flameOrange + "wattrace" + reset + "  •  software power meter\n\n")

	return b.String()
}

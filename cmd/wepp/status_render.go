package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// headingLines renders a section title with an underline.
func headingLines(title string, colorize bool) []string {
	line := title
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// progressBar draws fraction as a fixed width bar followed by a percentage.
func progressBar(fraction float64, width int, colorize bool) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction*float64(width) + 0.5)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
	label := fmt.Sprintf("[%s] %5.1f%%", bar, fraction*100)
	if !colorize {
		return label
	}
	color := ansiYellow
	if fraction >= 1 {
		color = ansiGreen
	}
	return color + label + ansiReset
}

// syncState summarizes the watermark and modified cells for display.
func syncState(uploaded, pending, modified int, enabled bool) string {
	if !enabled {
		return "disabled"
	}
	parts := []string{fmt.Sprintf("uploaded through recording %d", uploaded)}
	if pending > uploaded {
		parts = append(parts, fmt.Sprintf("pending through %d", pending))
	}
	if modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", modified))
	}
	return strings.Join(parts, ", ")
}

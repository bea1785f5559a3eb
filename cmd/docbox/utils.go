package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const docboxArt = `
 ____             _
|  _ \  ___   ___| |__   _____  __
| | | |/ _ \ / __| '_ \ / _ \ \/ /
| |_| | (_) | (__| |_) | (_) >  <
|____/ \___/ \___|_.__/ \___/_/\_\
`

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s: %s\n", yellow.Render("WARN"), fmt.Sprintf(format, args...))
}

// printStructured writes v as json or yaml. It reports false for the text format so the
// caller renders its own view.
func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	case outputText, "":
		return false, nil
	}
	return false, fmt.Errorf("unknown output format %q", format)
}

func keyValue(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s%v\n", gray.Render(fmt.Sprintf("%-10s", key)), value)
}

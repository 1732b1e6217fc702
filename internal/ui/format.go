package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/olekukonko/tablewriter"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess = colorFunc(ansi.Green)
	ColorError   = colorFunc(ansi.Red)
	ColorWarning = colorFunc(ansi.Yellow)
	ColorInfo    = colorFunc(ansi.Cyan)
	ColorBold    = colorFunc("default+b")
	ColorDim     = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(color string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, color)
		}
		return text
	}
}

// ShowHeader displays a formatted section header
func ShowHeader(title string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println(ColorBold(title))
	fmt.Println(strings.Repeat("=", 60))
}

// ShowError displays a formatted error message
func ShowError(err error) {
	fmt.Printf("\n%s ", ColorError("✗"))

	lines := strings.Split(err.Error(), "\n")
	for i, line := range lines {
		if i == 0 {
			fmt.Printf("%s\n", ColorError(line))
		} else {
			fmt.Printf("  %s\n", ColorDim(line))
		}
	}
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	fmt.Printf("%s %s\n", ColorSuccess("✓"), message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	fmt.Printf("%s %s\n", ColorWarning("⚠"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	fmt.Printf("%s %s\n", ColorInfo("ℹ"), message)
}

// PrintKeyValue prints a key-value pair in a formatted way
func PrintKeyValue(key, value string) {
	fmt.Printf("  %-20s %s\n", ColorDim(key+":"), value)
}

var statusColors = map[string]*color.Color{
	"OK":      color.New(color.FgGreen),
	"PASS":    color.New(color.FgGreen),
	"SKIPPED": color.New(color.FgCyan),
	"WARN":    color.New(color.FgYellow),
	"WARNING": color.New(color.FgYellow),
	"FAIL":    color.New(color.FgRed),
	"FAILED":  color.New(color.FgRed),
}

// colorStatus colors well-known status cells; anything else passes through.
func colorStatus(cell string) string {
	if c, ok := statusColors[cell]; ok {
		return c.Sprint(cell)
	}
	return cell
}

// SummaryTable renders an end-of-run summary table to stdout, coloring
// status cells.
func SummaryTable(headers []string, rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range rows {
		colored := make([]string, len(row))
		for i, cell := range row {
			colored[i] = colorStatus(cell)
		}
		table.Append(colored)
	}
	table.Render()
}

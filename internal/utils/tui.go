package utils

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Gruvbox-inspired palette, only used within this file
var (
	gruvboxFgDark  = text.Colors{text.FgHiBlack}
	gruvboxFgLight = text.Colors{text.FgWhite}
	gruvboxRed     = text.Colors{text.FgRed}
	gruvboxGreen   = text.Colors{text.FgGreen}
	gruvboxYellow  = text.Colors{text.FgYellow}
	gruvboxBlue    = text.Colors{text.FgBlue}
	gruvboxAqua    = text.Colors{text.FgCyan}

	gruvboxBlueBright   = text.Colors{text.FgHiBlue}
	gruvboxPurpleBright = text.Colors{text.FgHiMagenta}
	gruvboxAquaBright   = text.Colors{text.FgHiCyan}

	gruvboxBold = text.Colors{text.Bold}
)

// Theme - exported theme colors for consistent UI
var Theme = struct {
	// Semantic colors for different message types
	Success   text.Colors
	Info      text.Colors
	Warning   text.Colors
	Error     text.Colors
	Heading   text.Colors
	Subtle    text.Colors
	Important text.Colors
	Accent    text.Colors

	// UI Elements
	Title       text.Colors
	Divider     text.Colors
	TableHeader text.Colors
	TableBorder text.Colors
	TableRow    text.Colors
	TableAltRow text.Colors
}{
	Success:   gruvboxGreen,
	Info:      gruvboxBlue,
	Warning:   gruvboxYellow,
	Error:     gruvboxRed,
	Heading:   append(gruvboxAquaBright, text.Bold),
	Subtle:    gruvboxFgDark,
	Important: append(gruvboxPurpleBright, text.Bold),
	Accent:    gruvboxAqua,

	Title:       append(gruvboxAquaBright, text.Bold),
	Divider:     gruvboxFgDark,
	TableHeader: append(gruvboxBlueBright, text.Bold),
	TableBorder: gruvboxBlue,
	TableRow:    gruvboxFgLight,
	TableAltRow: text.Colors{text.FgWhite, text.Faint},
}

// PrintHeading prints a formatted heading
func PrintHeading(title string) {
	fmt.Println(Theme.Heading.Sprint(title))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Println(Theme.Success.Sprint("✓ ") + message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Println(Theme.Info.Sprint("ℹ ") + message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println(Theme.Warning.Sprint("⚠ ") + message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Println(Theme.Error.Sprint("✗ ") + message)
}

// PrintKeyValue prints a key-value pair
func PrintKeyValue(key, value string) {
	fmt.Printf("%s: %s\n", gruvboxBold.Sprint(key), value)
}

// PrintKeyValueWithColor prints a key-value pair with colored value
func PrintKeyValueWithColor(key string, value string, colors text.Colors) {
	fmt.Printf("%s: %s\n", gruvboxBold.Sprint(key), colors.Sprint(value))
}

// PrintDivider prints a horizontal divider
func PrintDivider() {
	fmt.Println(Theme.Divider.Sprint("---------------------------------------------------"))
}

// TableOptions defines options for table creation
type TableOptions struct {
	Title       string
	HeaderStyle text.Colors
	RowStyle    text.Colors
	BorderStyle text.Colors
	Style       table.Style
	// Pagination options
	EnablePagination bool
	PageSize         int
	CurrentPage      int
	TotalRows        int
}

// DefaultTableOptions returns default table options with Gruvbox theme
func DefaultTableOptions() TableOptions {
	return TableOptions{
		Title:            "notesync",
		HeaderStyle:      text.Colors{text.BgBlue, text.FgHiWhite, text.Bold},
		RowStyle:         text.Colors{text.FgWhite},
		BorderStyle:      text.Colors{text.FgBlue},
		Style:            table.StyleLight,
		EnablePagination: false,
		PageSize:         10,
		CurrentPage:      1,
		TotalRows:        0,
	}
}

// CreateTable creates a new table with default styling
func CreateTable(options ...TableOptions) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	// Use default options or the provided ones
	opts := DefaultTableOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	// Set title if provided
	if opts.Title != "" {
		t.SetTitle(opts.Title)
	}

	// Use StyleDouble which has very visible borders
	customStyle := table.StyleDouble

	// Apply explicit colors that will be visible in the terminal
	// Use the Gruvbox theme colors defined earlier
	customStyle.Color.Header = Theme.TableHeader
	customStyle.Color.Border = Theme.TableBorder
	customStyle.Color.Row = Theme.TableRow
	customStyle.Color.RowAlternate = Theme.TableAltRow
	customStyle.Title.Colors = Theme.Title
	customStyle.Title.Align = text.AlignCenter

	// Make sure borders and separators are enabled
	customStyle.Options.DrawBorder = true
	customStyle.Options.SeparateColumns = true
	customStyle.Options.SeparateFooter = true
	customStyle.Options.SeparateHeader = true

	// Add padding for better readability
	customStyle.Box.PaddingLeft = " "
	customStyle.Box.PaddingRight = " "

	// Apply the custom style to the table
	t.SetStyle(customStyle)

	// Enable alternating rows
	t.Style().Options.SeparateRows = false

	return t
}

// PrintTable prints a table with headers and rows
func PrintTable(headers []string, rows [][]string, options ...TableOptions) {
	// Create table with provided or default options
	opts := DefaultTableOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	t := CreateTable(opts)

	// Add headers
	headerRow := table.Row{}
	for _, header := range headers {
		headerRow = append(headerRow, header)
	}
	t.AppendHeader(headerRow)

	// Pagination logic
	startIndex := 0
	endIndex := len(rows)

	if opts.EnablePagination {
		if opts.TotalRows == 0 {
			opts.TotalRows = len(rows)
		}

		totalPages := (opts.TotalRows + opts.PageSize - 1) / opts.PageSize
		if opts.CurrentPage < 1 {
			opts.CurrentPage = 1
		} else if opts.CurrentPage > totalPages && totalPages > 0 {
			opts.CurrentPage = totalPages
		}

		startIndex = (opts.CurrentPage - 1) * opts.PageSize
		endIndex = startIndex + opts.PageSize
		if endIndex > len(rows) {
			endIndex = len(rows)
		}
	}

	// Add rows for current page
	for i := startIndex; i < endIndex; i++ {
		tableRow := table.Row{}
		for _, cell := range rows[i] {
			tableRow = append(tableRow, cell)
		}
		t.AppendRow(tableRow)
	}

	// Set column configurations for alignment
	configs := []table.ColumnConfig{}
	for i := range headers {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignCenter,
		})
	}
	t.SetColumnConfigs(configs)

	// Render the table
	t.Render()

	// Show pagination information if enabled
	if opts.EnablePagination {
		totalPages := (opts.TotalRows + opts.PageSize - 1) / opts.PageSize
		paginationInfo := fmt.Sprintf("Page %d of %d", opts.CurrentPage, totalPages)
		fmt.Println(Theme.Subtle.Sprint(paginationInfo))
	}
}

// StateColors picks the theme color for a sync state label
func StateColors(state string) text.Colors {
	switch state {
	case "synced":
		return Theme.Success
	case "syncing":
		return Theme.Info
	case "pending":
		return Theme.Warning
	case "error":
		return Theme.Error
	default:
		return Theme.Subtle
	}
}

package shared

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatRuntime renders a runtime in minutes as "2h 28m".
func FormatRuntime(minutes int) string {
	if minutes <= 0 {
		return "Unknown"
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// FormatCurrency renders a whole-dollar amount with US grouping, e.g. "$160,000,000".
func FormatCurrency(amount int64) string {
	if amount <= 0 {
		return "N/A"
	}
	return printer.Sprintf("$%d", amount)
}

// MarshalJSON encodes v, indenting when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

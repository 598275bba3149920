package normalizer

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/marvst/properties-scraper/internal/config"
)

// ErrUnparsableNumber is returned when a declared numeric field cannot be
// converted to a number.
var ErrUnparsableNumber = errors.New("value is not a parsable number")

// numberPattern captures the first plain numeric token in a string.
var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseNumber converts a raw value to float64 per the declared format.
func parseNumber(value any, format string) (float64, error) {
	switch format {
	case config.FormatBrazilianCurrency:
		s, ok := value.(string)
		if !ok {
			return numeric(value)
		}

		return parseBrazilianCurrency(s)

	case config.FormatInteger:
		f, err := numeric(value)
		if err != nil {
			return 0, err
		}

		return math.Trunc(f), nil

	default:
		return numeric(value)
	}
}

// parseBrazilianCurrency parses values like "R$ 1.234,56" where the dot
// is a thousands separator and the comma a decimal mark.
func parseBrazilianCurrency(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(s)

	match := numberPattern.FindString(s)
	if match == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableNumber, raw)
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableNumber, raw)
	}

	return f, nil
}

// numeric converts JSON-decoded scalars to float64.
func numeric(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnparsableNumber, v)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnparsableNumber, value)
	}
}

// numberValue reports the float64 value of an already-parsed field.
func numberValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseLocaleNumber parses a number formatted with the source catalogs'
// locale convention: "," is the decimal separator and "." the thousands
// separator. "1.200,50" parses to 1200.50 and "30,00" to 30.0.
func ParseLocaleNumber(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimSuffix(cleaned, "€")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty number")
	}

	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return value, nil
}

// flexNumber unmarshals from either a JSON number or a locale-formatted
// string. Extraction output mixes both depending on how the source page
// printed the value.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*n = 0
			return nil
		}
		value, err := ParseLocaleNumber(s)
		if err != nil {
			return err
		}
		*n = flexNumber(value)
		return nil
	}

	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*n = flexNumber(value)
	return nil
}

package output

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency represents a currency with its formatting rules
type Currency struct {
	Code    string // "USD", "EUR", "SEK"
	unit    currency.Unit
	tag     language.Tag
	printer *message.Printer
}

// symbolOverrides provides custom symbols where x/text defaults aren't ideal
var symbolOverrides = map[string]string{
	"SEK": "kr",
	"NOK": "kr",
	"DKK": "kr",
	"ISK": "kr",
}

// defaultLocaleForCurrency provides the "home" locale used to format each
// currency when the caller gives only a code.
var defaultLocaleForCurrency = map[string]language.Tag{
	"SEK": language.Swedish,
	"USD": language.AmericanEnglish,
	"EUR": language.German,
	"GBP": language.BritishEnglish,
	"NOK": language.Norwegian,
	"DKK": language.Danish,
	"CHF": language.German,
	"JPY": language.Japanese,
	"CAD": language.CanadianFrench,
	"AUD": language.MustParse("en-AU"),
	"BRL": language.BrazilianPortuguese,
	"MXN": language.LatinAmericanSpanish,
	"INR": language.MustParse("en-IN"),
	"CNY": language.Chinese,
	"KRW": language.Korean,
	"PLN": language.Polish,
	"CZK": language.Czech,
	"HUF": language.Hungarian,
	"TRY": language.Turkish,
	"ZAR": language.MustParse("en-ZA"),
	"NZD": language.MustParse("en-NZ"),
	"SGD": language.MustParse("en-SG"),
	"HKD": language.MustParse("zh-HK"),
	"THB": language.Thai,
}

// GetCurrency returns the Currency for a given code.
func GetCurrency(code string) Currency {
	code = strings.ToUpper(code)

	// Get the currency unit (validates the code)
	unit, err := currency.ParseISO(code)
	isUnknown := err != nil
	if isUnknown {
		unit = currency.USD // fallback unit for number formatting only
	}

	tag, ok := defaultLocaleForCurrency[code]
	if !ok {
		tag = language.English
	}

	c := Currency{
		Code:    code,
		unit:    unit,
		tag:     tag,
		printer: message.NewPrinter(tag),
	}

	// For unknown currencies, override the symbol to use the code
	if isUnknown {
		symbolOverrides[code] = code
	}

	return c
}

// getSymbol returns the currency symbol, using overrides where needed
func (c Currency) getSymbol() string {
	if sym, ok := symbolOverrides[c.Code]; ok {
		return sym
	}
	// Use x/text to get the narrow symbol
	return c.printer.Sprint(currency.NarrowSymbol(c.unit))
}

// isPrefix returns true if this currency symbol should be placed before the
// amount. golang.org/x/text/currency doesn't implement symbol positioning
// from CLDR patterns, so this list is maintained manually.
func (c Currency) isPrefix() bool {
	switch c.Code {
	case "USD", "GBP", "JPY", "CAD", "AUD", "MXN", "HKD", "SGD", "NZD", "ZAR":
		return true
	default:
		return false
	}
}

// Format formats a single amount with the currency symbol
func (c Currency) Format(amount float64) string {
	formatted := c.printer.Sprint(number.Decimal(amount,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	symbol := c.getSymbol()

	if c.isPrefix() {
		return symbol + formatted
	}
	return formatted + " " + symbol
}

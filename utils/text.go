package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	codePrefixRe = regexp.MustCompile(`^\s*\d[\w.]*\s+-\s+`)
	spacesRe     = regexp.MustCompile(`\s+`)
	nonSlugRe    = regexp.MustCompile(`[^a-z0-9]+`)
	numberRe     = regexp.MustCompile(`\d[\d\s.,]*`)
	digitsRe     = regexp.MustCompile(`-?\d+`)

	// Trailing price and promotion markers, e.g. "newPA...", "NRPA 12,50 €", "PA 107,10 €"
	promoSuffixRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i:nr|new)PA.*$`),
		regexp.MustCompile(`PA\s*[\d.,\s]*€.*$`),
		regexp.MustCompile(`PA(?:\.\.\.|…)\s*$`),
		regexp.MustCompile(`\s*[\d,.\s]+€.*$`),
	}

	productTypePrefixRe = regexp.MustCompile(`(?i)^(?:` + strings.Join([]string{
		`LOT H\.COUETTE \+TAIES`,
		`HOUSSE DE COUETTE`,
		`LOT DE 2 TAIES`,
		`TAIE D'OREILLER`,
		`DRAP HOUSSE B\d+`,
		`TORCHON`,
		`CHEMIN DE TABLE`,
		`NAPPE`,
		`SERVIETTE`,
		`SET DE TABLE`,
	}, "|") + `)\s+`)

	nullLike = map[string]struct{}{
		"none": {}, "nan": {}, "null": {}, "nil": {}, "<nil>": {}, "undefined": {}, "n/a": {},
	}
)

// CollapseSpaces trims s and replaces every whitespace run with one space
func CollapseSpaces(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}

// CleanFullName strips the leading "<code> - " prefix and trailing price or
// promotion markers, keeping the product type words.
func CleanFullName(raw string) string {
	name := codePrefixRe.ReplaceAllString(raw, "")
	for _, re := range promoSuffixRes {
		name = re.ReplaceAllString(name, "")
	}
	return CollapseSpaces(name)
}

// CleanName returns the short product name: CleanFullName without the
// generic product type prefix ("NAPPE", "HOUSSE DE COUETTE", ...).
func CleanName(raw string) string {
	name := CleanFullName(raw)
	name = productTypePrefixRe.ReplaceAllString(name, "")
	return CollapseSpaces(name)
}

// RemoveAccents decomposes s and drops the combining marks
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slugify builds a URL-safe handle: lowercase ASCII, every run of other
// characters collapsed into one hyphen, no leading or trailing hyphen.
func Slugify(s string) string {
	s = strings.ToLower(RemoveAccents(s))
	s = nonSlugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeType turns a category name into the Type column value
func NormalizeType(s string) string {
	return strings.ToUpper(CollapseSpaces(RemoveAccents(s)))
}

// FormatTitle upper-cases the first letter and lower-cases the rest
func FormatTitle(s string) string {
	s = CollapseSpaces(s)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// ParsePrice extracts a decimal price ("1 234,50 €" -> "1234.50").
// It returns "" when s carries no number.
func ParsePrice(s string) string {
	m := numberRe.FindString(s)
	if m == "" {
		return ""
	}
	m = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, m)
	m = strings.TrimRight(m, ".,")
	if strings.Contains(m, ",") {
		m = strings.ReplaceAll(m, ".", "")
		m = strings.ReplaceAll(m, ",", ".")
	}
	if _, err := strconv.ParseFloat(m, 64); err != nil {
		return ""
	}
	return m
}

// ParseInt returns the first integer found in s, or 0
func ParseInt(s string) int {
	m := digitsRe.FindString(strings.ReplaceAll(s, " ", ""))
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// NormalizeNull maps null-like placeholders ("None", "nan", ...) to ""
func NormalizeNull(v string) string {
	if _, ok := nullLike[strings.ToLower(strings.TrimSpace(v))]; ok {
		return ""
	}
	return v
}

// Truncate limits s to n runes
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

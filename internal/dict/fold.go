package dict

import "golang.org/x/text/cases"

// Fold returns the locale-naive case folding of s. Keys are indexed and hits
// are ordered by this form.
func Fold(s string) string {
	return cases.Fold().String(s)
}

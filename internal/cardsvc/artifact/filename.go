package artifact

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackName = "file"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces an uploaded filename to a flat ASCII name that
// cannot escape the destination folder.
func SecureFilename(name string) string {
	ascii := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	s, _, err := transform.String(ascii, name)
	if err != nil {
		return fallbackName
	}

	s = strings.NewReplacer("/", " ", "\\", " ").Replace(s)
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeChars.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")
	if s == "" {
		return fallbackName
	}
	return s
}

func PhotoName(cardID, original string) string {
	return cardID + "_" + SecureFilename(original)
}

// DocumentName names the file uploaded in form field document{slot}.
func DocumentName(cardID string, slot int, original string) string {
	return fmt.Sprintf("%s_doc%d_%s", cardID, slot, SecureFilename(original))
}

func CodeImageName(cardID string) string {
	return cardID + ".png"
}

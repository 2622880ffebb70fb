// Package naming derives manga titles and volume numbers from archive and
// folder names, e.g. "Dandadan-01" -> ("Dandadan", 1).
package naming

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	bracketRE   = regexp.MustCompile(`\[[^\]]*\]`)
	parenRE     = regexp.MustCompile(`\([^)]*\)`)
	separatorRE = regexp.MustCompile(`[_\-]+`)
	spaceRE     = regexp.MustCompile(`\s+`)

	// Trailing volume designators, most specific first.
	trailingVolumeRE = regexp.MustCompile(`(?i)[\s_\-]+(?:v|vol\.?|volume)[\s_\-]*\d+\s*$`)
	trailingDigitsRE = regexp.MustCompile(`[\s_\-]+\d+\s*$`)

	// Volume number extraction, in priority order.
	volumePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bvolume[\s_\-]*(\d+)`),
		regexp.MustCompile(`(?i)\bvol\.?[\s_\-]*(\d+)`),
		regexp.MustCompile(`(?i)\bv(\d+)`),
		regexp.MustCompile(`(\d+)\s*$`),
	}
)

// ExtractTitle strips volume designators and release-tag noise from a folder
// or archive name. Returns "Unknown Manga" if nothing is left.
func ExtractTitle(name string) string {
	title := trailingVolumeRE.ReplaceAllString(name, "")
	title = trailingDigitsRE.ReplaceAllString(title, "")
	title = bracketRE.ReplaceAllString(title, "")
	title = parenRE.ReplaceAllString(title, "")
	title = separatorRE.ReplaceAllString(title, " ")
	title = spaceRE.ReplaceAllString(title, " ")
	title = strings.TrimSpace(title)

	if title == "" {
		return "Unknown Manga"
	}
	return title
}

// ExtractVolumeNumber pulls a volume number out of a folder or archive name.
// Defaults to 1 when no number is present.
func ExtractVolumeNumber(name string) int {
	for _, re := range volumePatterns {
		if m := re.FindStringSubmatch(name); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n >= 0 {
				return n
			}
		}
	}
	return 1
}

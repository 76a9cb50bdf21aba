package utils

import (
	"strings"

	"github.com/ralt/ghpm/internal/models"
)

// ExpandPlaceholders substitutes %Name%, %Owner% and %Identifier% with the
// package's repository name, owner and identifier
func ExpandPlaceholders(s string, pkg models.Package) string {
	r := strings.NewReplacer(
		"%Name%", pkg.Name(),
		"%Owner%", pkg.Owner(),
		"%Identifier%", pkg.Identifier,
	)
	return r.Replace(s)
}

// Deduplicate keeps the first package for every Id and returns the
// later duplicates separately
func Deduplicate(packages []models.Package) (kept, dropped []models.Package) {
	seen := make(map[string]bool, len(packages))
	for _, pkg := range packages {
		id := pkg.Id()
		if seen[id] {
			dropped = append(dropped, pkg)
			continue
		}
		seen[id] = true
		kept = append(kept, pkg)
	}
	return kept, dropped
}

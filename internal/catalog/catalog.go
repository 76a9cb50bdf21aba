package catalog

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/models"
)

// maxSuggestions bounds the "did you mean" list
const maxSuggestions = 3

// Catalog resolves user supplied names to packages
type Catalog struct {
	packages []models.Package
}

// New creates a catalog over packages
func New(packages []models.Package) *Catalog {
	return &Catalog{packages: packages}
}

// Load reads the package database at path
func Load(path string) (*Catalog, error) {
	packages, err := LoadDatabase(path)
	if err != nil {
		return nil, err
	}
	return New(packages), nil
}

// Packages returns every package in the catalog
func (c *Catalog) Packages() []models.Package {
	return c.packages
}

// GetPackageFromName resolves name by exact repository URL, then by
// owner/name[/identifier], then by repository name alone and finally by
// owner alone. Ambiguous matches are rejected.
func (c *Catalog) GetPackageFromName(name string) (models.Package, error) {
	query := strings.TrimSpace(name)
	if query == "" {
		return models.Package{}, models.NewError(models.ErrUserInput, name, models.ErrUnknownPackage)
	}

	matchers := []struct {
		kind  string
		match func(models.Package) bool
	}{
		{"url", c.urlMatcher(query)},
		{"id", c.idMatcher(query)},
		{"repository", c.repositoryMatcher(query)},
		{"name", func(p models.Package) bool { return strings.EqualFold(p.Name(), query) }},
		{"owner", func(p models.Package) bool { return strings.EqualFold(p.Owner(), query) }},
	}

	for _, m := range matchers {
		if m.match == nil {
			continue
		}

		found := c.filter(m.match)
		switch len(found) {
		case 0:
			continue
		case 1:
			logrus.Debugf("Resolved %q to %s by %s", query, found[0].Id(), m.kind)
			return found[0], nil
		default:
			ids := make([]string, 0, len(found))
			for _, p := range found {
				ids = append(ids, p.Id())
			}
			logrus.Warnf("%q matches several packages by %s: %s", query, m.kind, strings.Join(ids, ", "))
			return models.Package{}, models.NewError(models.ErrUserInput, query,
				fmt.Errorf("%w: %s", models.ErrAmbiguousPackage, strings.Join(ids, ", ")))
		}
	}

	if suggestions := c.Suggest(query); len(suggestions) > 0 {
		logrus.Warnf("Unknown package %q, did you mean: %s", query, strings.Join(suggestions, ", "))
	} else {
		logrus.Warnf("Unknown package %q", query)
	}
	return models.Package{}, models.NewError(models.ErrUserInput, query, models.ErrUnknownPackage)
}

// Get returns the package with the exact id
func (c *Catalog) Get(id string) (models.Package, bool) {
	id = strings.ToLower(id)
	for _, p := range c.packages {
		if p.Id() == id {
			return p, true
		}
	}
	return models.Package{}, false
}

// Suggest returns the closest package ids for query
func (c *Catalog) Suggest(query string) []string {
	var out []string
	for _, p := range c.Search(query) {
		out = append(out, p.Id())
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// Search returns packages whose id fuzzily matches term, best first
func (c *Catalog) Search(term string) []models.Package {
	ids := make([]string, len(c.packages))
	for i, p := range c.packages {
		ids[i] = p.Id()
	}

	matches := fuzzy.Find(strings.ToLower(term), ids)
	results := make([]models.Package, 0, len(matches))
	for _, m := range matches {
		results = append(results, c.packages[m.Index])
	}
	return results
}

func (c *Catalog) filter(match func(models.Package) bool) []models.Package {
	var found []models.Package
	for _, p := range c.packages {
		if match(p) {
			found = append(found, p)
		}
	}
	return found
}

func (c *Catalog) urlMatcher(query string) func(models.Package) bool {
	if !strings.Contains(query, "://") && !strings.HasPrefix(strings.ToLower(query), "github.com/") {
		return nil
	}
	want := models.NormalizeURL(query)
	return func(p models.Package) bool {
		return models.NormalizeURL(p.Url) == want
	}
}

func (c *Catalog) idMatcher(query string) func(models.Package) bool {
	segments := strings.Split(strings.Trim(query, "/"), "/")
	if len(segments) != 2 && len(segments) != 3 {
		return nil
	}
	want := strings.ToLower(strings.Join(segments, "/"))
	return func(p models.Package) bool {
		return p.Id() == want
	}
}

// repositoryMatcher matches owner/name against every package of that
// repository, whatever its identifier
func (c *Catalog) repositoryMatcher(query string) func(models.Package) bool {
	segments := strings.Split(strings.Trim(query, "/"), "/")
	if len(segments) != 2 {
		return nil
	}
	return func(p models.Package) bool {
		return strings.EqualFold(p.Owner(), segments[0]) && strings.EqualFold(p.Name(), segments[1])
	}
}

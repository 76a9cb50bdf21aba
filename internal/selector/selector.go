package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/utils"
)

// AssetStage narrows the candidate assets for a package. A stage must
// return a subset of its input.
type AssetStage func(pkg models.Package, candidates []models.ReleaseAsset) ([]models.ReleaseAsset, error)

// AssetSelector picks one release asset by running its stages in order
type AssetSelector struct {
	stages []AssetStage
}

// NewAssetSelector creates a selector with the given stages
func NewAssetSelector(stages ...AssetStage) *AssetSelector {
	return &AssetSelector{stages: stages}
}

// DefaultAssetSelector runs the index stage and then the pattern stage
func DefaultAssetSelector() *AssetSelector {
	return NewAssetSelector(IndexStage, PatternStage)
}

// Select returns the first asset left after all stages have run
func (s *AssetSelector) Select(pkg models.Package, assets []models.ReleaseAsset) (models.ReleaseAsset, error) {
	candidates := assets
	for _, stage := range s.stages {
		narrowed, err := stage(pkg, candidates)
		if err != nil {
			return models.ReleaseAsset{}, models.NewError(models.ErrUserInput, pkg.Id(), err)
		}
		candidates = narrowed
	}

	if len(candidates) == 0 {
		return models.ReleaseAsset{}, models.NewError(models.ErrUserInput, pkg.Id(), models.ErrNoAsset)
	}

	logrus.Debugf("Selected asset %s for %s", candidates[0].Name, pkg.Id())
	return candidates[0], nil
}

// IndexStage keeps only the asset at AssetIndex when it is set
func IndexStage(pkg models.Package, candidates []models.ReleaseAsset) ([]models.ReleaseAsset, error) {
	if pkg.AssetIndex == nil {
		return candidates, nil
	}

	idx := *pkg.AssetIndex
	if idx < 0 || idx >= len(candidates) {
		return nil, fmt.Errorf("asset index %d out of range for %d assets: %w", idx, len(candidates), models.ErrNoAsset)
	}
	return candidates[idx : idx+1], nil
}

// PatternStage keeps assets whose placeholder-expanded name matches
// AssetNamePattern
func PatternStage(pkg models.Package, candidates []models.ReleaseAsset) ([]models.ReleaseAsset, error) {
	if pkg.AssetNamePattern == "" {
		return candidates, nil
	}

	re, err := WildcardRegexp(pkg.AssetNamePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid asset name pattern %q: %w", pkg.AssetNamePattern, err)
	}

	var kept []models.ReleaseAsset
	for _, asset := range candidates {
		if re.MatchString(utils.ExpandPlaceholders(asset.Name, pkg)) {
			kept = append(kept, asset)
		}
	}
	return kept, nil
}

// WildcardRegexp converts a `*`/`?` wildcard pattern to an anchored regexp
func WildcardRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

package github

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/ralt/ghpm/internal/models"
)

// FindRelease picks a release by tag. An empty version selects the latest
// release. Otherwise an exact tag match wins, then a semver-equivalent one
// such as v1.2.3 for 1.2.3.
func FindRelease(releases []models.Release, version string) (models.Release, error) {
	if len(releases) == 0 {
		return models.Release{}, models.ErrNoReleases
	}
	if version == "" {
		return releases[0], nil
	}

	for _, r := range releases {
		if r.TagName == version {
			return r, nil
		}
	}

	want := normalizeVersion(version)
	if semver.IsValid(want) {
		for _, r := range releases {
			tag := normalizeVersion(r.TagName)
			if semver.IsValid(tag) && semver.Compare(tag, want) == 0 {
				return r, nil
			}
		}
	}

	return models.Release{}, models.ErrVersionNotFound
}

// IsLatest reports whether tag names the newest release
func IsLatest(releases []models.Release, tag string) bool {
	if len(releases) == 0 {
		return false
	}
	return releases[0].TagName == tag
}

// normalizeVersion ensures a "v" prefix for semver comparison
func normalizeVersion(version string) string {
	if version != "" && !strings.HasPrefix(version, "v") {
		return "v" + version
	}
	return version
}

package selector

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/utils"
)

// PathStage may redirect the install directory of a package
type PathStage func(pkg models.Package, dir string) string

// InstallPathResolver computes an install directory from a default
type InstallPathResolver struct {
	stages []PathStage
}

// NewInstallPathResolver creates a resolver with the given stages
func NewInstallPathResolver(stages ...PathStage) *InstallPathResolver {
	return &InstallPathResolver{stages: stages}
}

// DefaultInstallPathResolver runs the tag stage and then the template stage
func DefaultInstallPathResolver() *InstallPathResolver {
	return NewInstallPathResolver(TagStage, TemplateStage)
}

// Resolve runs every stage over defaultDir
func (r *InstallPathResolver) Resolve(pkg models.Package, defaultDir string) string {
	dir := defaultDir
	for _, stage := range r.stages {
		dir = stage(pkg, dir)
	}
	return dir
}

// TagStage is a reserved pass-through; tags and topics do not redirect
// installs yet.
func TagStage(_ models.Package, dir string) string {
	return dir
}

// TemplateStage redirects to the expanded InstallPath when it already exists
func TemplateStage(pkg models.Package, dir string) string {
	if pkg.InstallPath == "" {
		return dir
	}

	expanded := filepath.FromSlash(utils.ExpandPlaceholders(pkg.InstallPath, pkg))
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(dir, expanded)
	}

	if !utils.PathExists(expanded) {
		logrus.Debugf("Install path %s does not exist, using %s", expanded, dir)
		return dir
	}
	return expanded
}

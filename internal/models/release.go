package models

// Release is a GitHub release and its assets
type Release struct {
	TagName    string
	Name       string
	Prerelease bool
	Assets     []ReleaseAsset
}

// ReleaseAsset is a downloadable file attached to a release
type ReleaseAsset struct {
	Name               string
	BrowserDownloadURL string
	Size               int64

	// Download URL of a detached signature published next to the asset
	SignatureURL string
}

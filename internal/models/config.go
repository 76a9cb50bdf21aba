package models

// Config contains the resolved application configuration
type Config struct {
	// Storage locations
	DataDir      string `mapstructure:"data_dir"`
	CacheDir     string `mapstructure:"cache_dir"`
	LibraryPath  string `mapstructure:"library_path"`
	DatabasePath string `mapstructure:"database_path"`

	// Catalog repository
	CatalogDir string `mapstructure:"catalog_dir"`
	CatalogURL string `mapstructure:"catalog_url"`

	// Installation
	GlobalDir    string `mapstructure:"global_dir"`
	LockFileName string `mapstructure:"lock_file_name"`

	GitHub GitHubConfig `mapstructure:"github"`
}

// GitHubConfig configures the releases client
type GitHubConfig struct {
	APIURL    string `mapstructure:"api_url"`
	Token     string `mapstructure:"token"`
	UserAgent string `mapstructure:"user_agent"`
}

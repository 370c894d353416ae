package config

const (
	defaultDataDir              = "/usr/local/var/kensaku/data"
	defaultRebuildRatePerMinute = 6
	mappingSuffix               = ".mapping.json"

	// DefaultSearchLimit is the result count used when neither config nor caller sets one.
	DefaultSearchLimit = 10
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RebuildRatePerMinute == 0 {
		cfg.Server.RebuildRatePerMinute = defaultRebuildRatePerMinute
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = defaultDataDir + "/db/documents.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = defaultDataDir + "/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = defaultDataDir + "/indices/vectors.bin"
	}
	// The mapping blob is a sibling of the index blob unless placed explicitly.
	if cfg.Storage.VectorMappingPath == "" {
		cfg.Storage.VectorMappingPath = cfg.Storage.VectorIndexPath + mappingSuffix
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "flat"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 384
	}
	if cfg.Vector.Compression == "" {
		cfg.Vector.Compression = "zstd"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = DefaultSearchLimit
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.KeywordTitleBoost == 0 {
		cfg.Search.KeywordTitleBoost = 10.0
	}
	if cfg.Search.HistoryEnabled == nil {
		t := true
		cfg.Search.HistoryEnabled = &t
	}
}

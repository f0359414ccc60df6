package conf

import (
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
)

// Bootstrap is the root configuration.
type Bootstrap struct {
	Server *Server `json:"server"`
	Data   *Data   `json:"data"`
	Filter *Filter `json:"filter"`
}

// Server holds transport settings.
type Server struct {
	HTTP HTTP `json:"http"`
}

type HTTP struct {
	Network string `json:"network"`
	Addr    string `json:"addr"`
	// TimeoutSeconds bounds request handling; 0 keeps the transport default.
	TimeoutSeconds int64 `json:"timeout_seconds"`
}

// Data holds storage settings.
type Data struct {
	Database Database `json:"database"`
	Redis    Redis    `json:"redis"`
}

type Database struct {
	Driver string `json:"driver"`
	Source string `json:"source"`
	Pool   Pool   `json:"pool"`
}

type Pool struct {
	MaxOpenConns    int32 `json:"max_open_conns"`
	MinIdleConns    int32 `json:"min_idle_conns"`
	MaxConnLifetime int64 `json:"max_conn_lifetime"` // minutes
	MaxConnIdleTime int64 `json:"max_conn_idle_time"` // minutes
}

type Redis struct {
	// Enabled toggles the fingerprint cache backend. When false the
	// engine runs without a cache and always recomputes fingerprints.
	Enabled             bool   `json:"enabled"`
	Network             string `json:"network"`
	Addr                string `json:"addr"`
	ReadTimeoutSeconds  int64  `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int64  `json:"write_timeout_seconds"`
}

// Filter holds the matching-engine toggles.
type Filter struct {
	// ExactMatch switches literal text rules from containment to equality.
	ExactMatch bool `json:"exact_match"`
	// CaseSensitive disables case folding for literal text rules.
	CaseSensitive bool `json:"case_sensitive"`
	// ImageThreshold is the fuzzy match distance ratio in [0, 1].
	ImageThreshold float64 `json:"image_threshold"`
	// HashCacheTTLHours is the fingerprint cache expiry.
	HashCacheTTLHours int64 `json:"hash_cache_ttl_hours"`
	// FailClosed blocks messages when the rule set cannot be fetched.
	// The default (false) lets them through.
	FailClosed bool `json:"fail_closed"`
	// AssetDir is where canonical rule images are stored.
	AssetDir string `json:"asset_dir"`
}

// Load reads and scans the bootstrap configuration from path.
func Load(path string) (*Bootstrap, func(), error) {
	c := config.New(
		config.WithSource(
			file.NewSource(path),
		),
	)
	if err := c.Load(); err != nil {
		c.Close()
		return nil, nil, err
	}

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		c.Close()
		return nil, nil, err
	}
	cleanup := func() {
		c.Close()
	}
	return &bc, cleanup, nil
}

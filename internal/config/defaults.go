package config

import "time"

// DefaultConfig returns the configuration used when no file or environment
// override is present.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:       "https://www.steamgriddb.com/api/v2",
			MaxConcurrent: 4,
			MaxQueued:     32,
			PermitWait:    10 * time.Second,
			Timeout:       10 * time.Second,
		},
		Cache: CacheConfig{
			TTLDays:    30,
			MaxEntries: 512,
			Slack:      32,
		},
		Scanner: ScannerConfig{
			MaxDepth: 3,
			MaxFiles: 2000,
		},
		Resolver: ResolverConfig{
			ResultCapacity: 512,
			MaxInFlight:    64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// defaultConfigTOML is written on first run when no config file exists.
const defaultConfigTOML = `# covers configuration

[catalog]
# API credential for the remote image catalog. Leave empty to stay offline.
credential = ""
base_url = "https://www.steamgriddb.com/api/v2"
max_concurrent = 4
max_queued = 32
permit_wait = "10s"
timeout = "10s"

[cache]
# dir defaults to the XDG state directory when empty.
dir = ""
ttl_days = 30
max_entries = 512
slack = 32

[scanner]
max_depth = 3
max_files = 2000

[resolver]
result_capacity = 512
max_in_flight = 64

[logging]
# trace, debug, info, warn, error
level = "info"
# auto, json, console
format = "auto"
`

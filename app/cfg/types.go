package cfg

type Cfg struct {
	// Storage
	DBPath string

	// HTTP server
	Port         string
	APIAccessKey string
	RedisAddr    string
	CacheTTL     int

	// Background work
	WorkerCount     int
	RefreshInterval int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

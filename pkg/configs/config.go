package configs

import "time"

type Config struct {
	HttpAddr        string
	DebugAddr       string
	ShutdownTimeout time.Duration
	Datastore       string
	Redis           RedisConfig
	Cassandra       CassandraConfig
	StateFile       string
	IdentitiesFile  string
	LogLevel        string
	Views           ViewsConfig
	Browser         BrowserConfig
}

type RedisConfig struct {
	Address  string
	Database int
	Password string
	Prefix   string
}

type CassandraConfig struct {
	Hosts    string
	Keyspace string
}

type ViewsConfig struct {
	MaxViewsPerRequest int
	MaxRequestsPerHour int
	RateWindow         time.Duration
	DelayMin           time.Duration
	DelayMax           time.Duration
	NavigationTimeout  time.Duration
	TargetDomain       string
	OutboxLimit        int
}

type BrowserConfig struct {
	Bin         string
	Headless    bool
	ScrollSteps int
	MinScroll   int
	MaxScroll   int
	MinPause    time.Duration
	MaxPause    time.Duration
}

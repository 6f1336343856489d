package config

// FastStoreConfig configures the shared Redis fast store.
type FastStoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// DialTimeout bounds connection establishment.
	DialTimeout string `yaml:"dial_timeout"`
}

// DefaultFastStoreConfig returns sensible defaults.
func DefaultFastStoreConfig() FastStoreConfig {
	return FastStoreConfig{
		Addr:        "localhost:6379",
		DialTimeout: "2s",
	}
}

package config

import "os"

func loadTestConfig(cfg *Config) {
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerPort = 0
	cfg.StorageRoot = os.TempDir()
	cfg.BaseURL = "http://localhost:3000"

	loadRedisEnv(cfg)
}

package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("IDENTITY_HEADER", "")
	t.Setenv("OTEL_SAMPLING_RATE", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("want port 8080, got %s", cfg.Port)
	}
	if cfg.StoreBackend != StoreBackendMySQL {
		t.Errorf("want backend mysql, got %s", cfg.StoreBackend)
	}
	if cfg.IdentityHeader != "X-Authenticated-User" {
		t.Errorf("want identity header X-Authenticated-User, got %s", cfg.IdentityHeader)
	}
	if cfg.OtelSamplingRate != 1.0 {
		t.Errorf("want sampling rate 1.0, got %v", cfg.OtelSamplingRate)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")

	cfg := Load()

	if cfg.StoreBackend != StoreBackendRedis {
		t.Errorf("want backend redis, got %s", cfg.StoreBackend)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("want redis db 3, got %d", cfg.RedisDB)
	}
	if !cfg.AutoMigrate {
		t.Error("want auto migrate true, got false")
	}
	if cfg.OtelSamplingRate != 0.25 {
		t.Errorf("want sampling rate 0.25, got %v", cfg.OtelSamplingRate)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"mysql with dsn", Config{StoreBackend: StoreBackendMySQL, DatabaseURL: "dsn", IdentityHeader: "X-User"}, false},
		{"mysql without dsn", Config{StoreBackend: StoreBackendMySQL, IdentityHeader: "X-User"}, true},
		{"sqlite with dsn", Config{StoreBackend: StoreBackendSQLite, DatabaseURL: "file.db", IdentityHeader: "X-User"}, false},
		{"redis", Config{StoreBackend: StoreBackendRedis, RedisAddr: "localhost:6379", IdentityHeader: "X-User"}, false},
		{"redis without addr", Config{StoreBackend: StoreBackendRedis, IdentityHeader: "X-User"}, true},
		{"unknown backend", Config{StoreBackend: "etcd", IdentityHeader: "X-User"}, true},
		{"empty identity header", Config{StoreBackend: StoreBackendRedis, RedisAddr: "a"}, true},
		{"bad sampling rate", Config{StoreBackend: StoreBackendRedis, RedisAddr: "a", IdentityHeader: "X-User", OtelSamplingRate: 1.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("want error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

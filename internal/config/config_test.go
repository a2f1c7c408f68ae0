package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 15*time.Second {
		t.Fatalf("UpstreamTimeout 应被解析为 15s，得到 %s", cfg.Global.UpstreamTimeout.DurationValue())
	}
	if cfg.Global.CacheDir == "" {
		t.Fatalf("CacheDir 应该被保留")
	}
	if cfg.Global.ListenPort == 0 {
		t.Fatalf("ListenPort 应当被解析")
	}
	if !cfg.Global.CoalesceFetches {
		t.Fatalf("CoalesceFetches 默认应开启")
	}
	if cfg.Global.LogMaxBackups != 10 {
		t.Fatalf("LogMaxBackups 应自动填充默认值")
	}
}

func TestValidateRejectsBadEndpoint(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Global.ListenPort" {
		t.Fatalf("ListenPort 超出范围应当报错，得到 %v", err)
	}
}

func TestValidateFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Global.LogLevel = "loud" }},
		{"zero timeout", func(c *Config) { c.Global.UpstreamTimeout = 0 }},
		{"zero image limit", func(c *Config) { c.Global.MaxImageBytes = 0 }},
		{"negative backups", func(c *Config) { c.Global.LogMaxBackups = -1 }},
		{"ftp endpoint", func(c *Config) { c.Global.RecipesEndpoint = "ftp://example.com/recipes.json" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestCacheDirLabel(t *testing.T) {
	if (GlobalConfig{}).CacheDirLabel() != "<platform-default>" {
		t.Fatalf("空 CacheDir 应显示平台默认目录")
	}
	if (GlobalConfig{CacheDir: "/tmp/x"}).CacheDirLabel() != "/tmp/x" {
		t.Fatalf("CacheDir 应原样返回")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5000,
			LogLevel:        "info",
			CacheDir:        "./data",
			RecipesEndpoint: "https://d3jbb8n5wk0qxi.cloudfront.net/recipes.json",
			UpstreamTimeout: Duration(time.Second),
			MaxImageBytes:   1024,
			CoalesceFetches: true,
		},
	}
}

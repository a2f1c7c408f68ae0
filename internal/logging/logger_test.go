package logging

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/recipe-hub/recipe-hub/internal/config"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("非法日志级别应返回错误")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 用户不受目录权限限制")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "recipe-hub.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe-hub.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestApplyLevel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if err := ApplyLevel(logger, "debug"); err != nil {
		t.Fatalf("更新日志级别失败: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("日志级别应为 debug，得到 %s", logger.GetLevel())
	}
	if err := ApplyLevel(logger, "nope"); err == nil {
		t.Fatalf("非法级别应返回错误")
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("非法级别不应修改当前级别")
	}
}

func TestFetchFields(t *testing.T) {
	fields := FetchFields("https://x/a.png", "abc", "hit")
	if fields["cache_hit"] != true || fields["outcome"] != "hit" || fields["cache_key"] != "abc" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/recipe-hub/recipe-hub/internal/cache"
	"github.com/recipe-hub/recipe-hub/internal/config"
	"github.com/recipe-hub/recipe-hub/internal/fetcher"
	"github.com/recipe-hub/recipe-hub/internal/logging"
	"github.com/recipe-hub/recipe-hub/internal/metrics"
	"github.com/recipe-hub/recipe-hub/internal/pressure"
	"github.com/recipe-hub/recipe-hub/internal/recipe"
	"github.com/recipe-hub/recipe-hub/internal/server"
	"github.com/recipe-hub/recipe-hub/internal/transport"
	"github.com/recipe-hub/recipe-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_dir"] = cfg.Global.CacheDirLabel()
		fields["recipes_endpoint"] = cfg.Global.RecipesEndpoint
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	app, store, err := buildApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		return 1
	}
	defer store.Close()

	if err := config.Watch(opts.configPath, func(next *config.Config) {
		if err := logging.ApplyLevel(logger, next.Global.LogLevel); err != nil {
			logger.WithError(err).WithField("action", "config_reload").Warn("config_reload_failed")
		}
	}, func(err error) {
		logger.WithError(err).WithField("action", "config_reload").Warn("config_reload_failed")
	}); err != nil {
		logger.WithError(err).WithField("action", "config_watch").Warn("config_watch_disabled")
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_dir"] = store.Dir()
	fields["coalesce_fetches"] = cfg.Global.CoalesceFetches
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   cfg.Global.ListenPort,
	}).Info("Fiber 服务启动")

	if err := app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort)); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildApp 按“压力广播 → 磁盘缓存 → 传输层 → Fetcher → Fiber server”顺序装配依赖。
// 缓存目录无法创建时直接失败，不以无缓存模式启动。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, cache.Store, error) {
	m := metrics.New()
	broadcaster := pressure.NewBroadcaster(logger)

	store, err := cache.NewStore(cfg.Global.CacheDir,
		cache.WithLogger(logger),
		cache.WithPressureSource(broadcaster),
		cache.WithObserver(m),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	httpClient := transport.NewClient(cfg)
	imageFetcher, err := fetcher.New(store, transport.NewHTTP(httpClient, cfg.Global.MaxImageBytes),
		fetcher.WithLogger(logger),
		fetcher.WithObserver(m),
		fetcher.WithCoalescing(cfg.Global.CoalesceFetches),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("构建 fetcher 失败: %w", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Fetcher:  imageFetcher,
		Recipes:  recipe.NewClient(cfg.Global.RecipesEndpoint, httpClient),
		Store:    store,
		Pressure: broadcaster,
		Metrics:  m,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("构建 HTTP 服务失败: %w", err)
	}

	return app, store, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("recipe-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 RECIPE_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("RECIPE_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

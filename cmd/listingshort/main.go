package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"listingshort/internal/app"
	brcfg "listingshort/internal/config"
	"listingshort/internal/logger"

	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	var (
		cfgPath string
		mode    string
	)
	flag.StringVar(&cfgPath, "config", "", "配置文件路径（默认读取 LISTINGSHORT_CONFIG 或 configs/config.yaml）")
	flag.StringVar(&mode, "mode", app.ModeRun, "运行模式: run | serve")
	flag.Parse()

	if cfgPath == "" {
		cfgPath = os.Getenv("LISTINGSHORT_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := brcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	if closer := setupLogOutput(cfg.App); closer != nil {
		defer closer.Close()
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，模式=%s）", cfg.App.Env, mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	runErr := a.Run(ctx, mode)
	if err := a.Close(); err != nil {
		logger.Warnf("释放资源失败: %v", err)
	}
	if runErr != nil {
		log.Fatalf("运行失败: %v", runErr)
	}
}

// setupLogOutput 同时输出到 stdout 与滚动日志文件。
func setupLogOutput(cfg brcfg.AppConfig) io.Closer {
	path := strings.TrimSpace(cfg.LogPath)
	if path == "" {
		return nil
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return rotator
}

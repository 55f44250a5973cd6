// Package main 批量 RPC Server 入口
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"batchrpc/internal/assembler"
	"batchrpc/internal/commands"
	"batchrpc/internal/config"
	"batchrpc/internal/dispatch"
	"batchrpc/internal/eventlog"
	"batchrpc/internal/hook"
	"batchrpc/internal/ledger"
	"batchrpc/internal/server"
	"batchrpc/internal/shared/infra"
	"batchrpc/pkg/logging"
)

func main() {
	configDir := flag.String("config", "", "config directory (overrides CONFIG_DIR)")
	flag.Parse()
	if *configDir != "" {
		config.SetConfigDir(*configDir)
	}

	// 加载配置（自动加载 .env，根据 APP_ENV 选择 YAML）
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("Starting batch RPC server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    "stdout",
		Component: "batchrpc",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	inf, err := infra.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer inf.Close()

	// 内置命令：Blob 仅在配置 MinIO 时注册
	deps := commands.Deps{Cache: inf.Cache}
	if inf.Blob != nil {
		deps.Blob = inf.Blob
	}
	registry := dispatch.NewRegistry()
	if err := commands.Register(registry, deps); err != nil {
		log.Fatalf("Failed to register commands: %v", err)
	}
	log.Printf("Registered %d commands: %v", registry.Len(), registry.Names())

	// 命令事件日志：slog + Redis Stream + 审计库
	sinks := []eventlog.Sink{eventlog.NewSlogSink(logger)}
	if inf.EventBus != nil {
		sinks = append(sinks, eventlog.NewStreamSink(inf.EventBus))
	}
	fields := resultFields(cfg)
	if inf.Audit != nil {
		sinks = append(sinks, eventlog.NewAuditSink(inf.Audit, fields))
	}
	hooks := hook.Set{Log: eventlog.LogFunc(eventlog.Multi(sinks...))}

	metrics := server.NewMetrics("batchrpc", nil)
	dispatcher := dispatch.New(registry, dispatch.Options{
		Fields:   fields,
		Debug:    cfg.Server.Debug,
		Hooks:    hooks,
		Logger:   logger,
		Observer: metrics,
	})

	h := server.NewHandler(registry, dispatcher, server.Options{
		GetBase: cfg.Server.GetBase,
		FieldLimits: assembler.Limits{
			MaxFieldCount: cfg.Limits.MaxFieldCount,
			MaxFieldSize:  cfg.Limits.MaxFieldSize,
		},
		FileLimits: ledger.Limits{
			MaxFileCount: cfg.Limits.MaxFileCount,
			MaxFileSize:  cfg.Limits.MaxFileSize,
		},
		TempDir: cfg.Upload.TempDir,
		Hooks:   hooks,
		Logger:  logger,
		Metrics: metrics,
	})

	// 上传与下载可能持续较长时间，只限制读取请求头
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Batch RPC server listening on :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Printf("Server stopped after %d requests\n", h.Requests())
}

func resultFields(cfg *config.Config) dispatch.ResultFields {
	f := cfg.ResultFields
	return dispatch.ResultFields{
		ErrCode:   f.ErrCode,
		ErrMsg:    f.ErrMsg,
		ErrLoc:    f.ErrLoc,
		Args:      f.Args,
		Exception: f.Exception,
		ID:        f.ID,
		ExecTime:  f.ExecTime,
	}
}

/**
 * 应用:neogvm 服务进程
 * @author: sun977
 * @date: 2025.11.10
 * @description: 装配流水线、调度器与 HTTP 服务，负责启动与优雅关闭
 * @func: NewApp、Run、Close
 */
package neogvm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"neogvm/internal/app/neogvm/middleware"
	"neogvm/internal/app/neogvm/router"
	"neogvm/internal/app/neogvm/setup"
	"neogvm/internal/config"
	"neogvm/internal/pkg/auth"
	"neogvm/internal/pkg/logger"

	"github.com/sirupsen/logrus"
)

// shutdownTimeout 关闭时等待进行中请求的时间
const shutdownTimeout = 5 * time.Second

// App 应用程序结构体
type App struct {
	config    *config.Config
	core      *setup.CoreModule
	scheduler *setup.SchedulerModule
	router    *router.Router
}

// NewApp 创建应用实例
func NewApp(cfg *config.Config) (*App, error) {
	core, err := setup.BuildCoreModule(cfg)
	if err != nil {
		return nil, fmt.Errorf("build core module: %w", err)
	}

	sched := setup.BuildSchedulerModule(cfg, core)
	httpModule := setup.BuildHTTPModule(core, sched)

	var jwtManager *auth.JWTManager
	if cfg.Security.JWT.Enabled {
		jwtManager = auth.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, cfg.Security.JWT.AccessTokenExpire)
	}
	mm := middleware.NewMiddlewareManager(jwtManager, &cfg.Security)

	r := router.NewRouter(cfg, mm, httpModule.ScanHandler, httpModule.PipelineHandler)
	r.SetupRoutes()

	return &App{config: cfg, core: core, scheduler: sched, router: r}, nil
}

// GetRouter 获取路由器实例
func (a *App) GetRouter() *router.Router {
	return a.router
}

// Core 流水线模块
func (a *App) Core() *setup.CoreModule {
	return a.core
}

// Run 启动调度器与 HTTP 服务，ctx 取消后优雅关闭
func (a *App) Run(ctx context.Context) error {
	addr := a.config.Server.GetAddress()
	server := &http.Server{
		Addr:         addr,
		Handler:      a.router.GetEngine(),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	if s := a.scheduler.Scheduler; s != nil {
		if err := s.Start(ctx); err != nil {
			return err
		}
		defer s.Stop()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.LogSystemEvent("server", "starting", addr, logrus.InfoLevel, nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.LogSystemEvent("server", "shutting_down", addr, logrus.InfoLevel, nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Close 释放底层资源
func (a *App) Close() error {
	return a.core.Close()
}

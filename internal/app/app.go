// Package app assembles the admin service and runs the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tingly-box/relayadmin/internal/activity"
	"github.com/tingly-box/relayadmin/internal/config"
	"github.com/tingly-box/relayadmin/internal/db"
	"github.com/tingly-box/relayadmin/internal/http/api/admin"
	"github.com/tingly-box/relayadmin/internal/logging"
	"github.com/tingly-box/relayadmin/internal/oauthflow"
	"github.com/tingly-box/relayadmin/internal/probe"
	"github.com/tingly-box/relayadmin/internal/registry"
	"github.com/tingly-box/relayadmin/internal/routing"
	"github.com/tingly-box/relayadmin/internal/store"
)

// shutdownTimeout bounds graceful server shutdown.
const shutdownTimeout = 10 * time.Second

// Run opens the database, wires the components, and serves the admin API
// until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return fmt.Errorf("open database: %w", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}

	st := store.NewStore(conn)
	recorder := activity.NewRecorder(conn)
	prober := probe.NewHTTPProber(cfg.ProbeTimeout.Std())
	reg := registry.NewRegistry(st, prober, recorder, cfg.ProbeTimeout.Std())
	resolver := routing.NewResolver(st)
	exchanger := oauthflow.NewOAuth2Exchanger(cfg.OAuth)
	oauthMgr := oauthflow.NewManager(st, exchanger, recorder, cfg.OAuthExchangeTimeout.Std())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(logging.GinLogger(), gin.Recovery())

	admin.Register(router, admin.Deps{
		Config:   cfg,
		DB:       conn,
		Store:    st,
		Registry: reg,
		Resolver: resolver,
		OAuth:    oauthMgr,
		Recorder: recorder,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("admin api listening on %s", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case errServe := <-serveErr:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	log.Info("admin api stopped")
	return nil
}

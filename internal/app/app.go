// Package app boots the mapping service: database, blob storage, the run
// engine, and the admin HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docmapper/docmapper/internal/config"
	"github.com/docmapper/docmapper/internal/db"
	adminapi "github.com/docmapper/docmapper/internal/http/api/admin"
	"github.com/docmapper/docmapper/internal/mapping"
	"github.com/docmapper/docmapper/internal/storage"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the admin API server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSeed := seedAdminFromEnv(conn); errSeed != nil {
		return errSeed
	}

	storageDir := config.LoadStorageDir(configPath)
	store, errStore := storage.NewLocalStore(storageDir)
	if errStore != nil {
		return errStore
	}

	jwtConfig, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}

	// No extraction backend is configured yet; items reach the server with
	// their extracted payloads already attached.
	runner := mapping.NewRunner(conn, store, nil)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogMiddleware())

	adminapi.RegisterAdminRoutes(engine, conn, jwtConfig, store, runner)

	port := config.LoadServerPort(configPath, defaultPort)
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting mapping service on %s (config=%s, storage=%s)", addr, configPath, storageDir)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// seedAdminFromEnv creates the first admin from ADMIN_USERNAME and
// ADMIN_PASSWORD when no admin exists yet. Headless deploys use this
// instead of the init server.
func seedAdminFromEnv(conn *gorm.DB) error {
	username := strings.TrimSpace(os.Getenv(config.EnvAdminUser))
	password := os.Getenv(config.EnvAdminPass)
	if username == "" || password == "" {
		return nil
	}
	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	if initialized {
		return nil
	}
	log.Infof("seeding admin account %q from environment", username)
	return CreateAdminUserWithConn(conn, username, password)
}

// requestLogMiddleware logs each request with method, path, status, and
// latency.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Info("request")
	}
}

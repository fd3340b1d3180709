package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/debug"
	"github.com/cloudzz-dev/cldzchat/internal/server/auth"
	"github.com/cloudzz-dev/cldzchat/internal/server/files"
	"github.com/cloudzz-dev/cldzchat/internal/server/handlers"
	"github.com/cloudzz-dev/cldzchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
	"github.com/cloudzz-dev/cldzchat/internal/server/ws"
	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("main")

type Options struct {
	Port          string `long:"port" env:"PORT" default:"8080" description:"HTTP listen port"`
	DatabaseURL   string `long:"database-url" env:"DATABASE_URL" default:"cldzchat.db" description:"postgres:// URL or sqlite file path"`
	JWTSecret     string `long:"jwt-secret" env:"JWT_SECRET" description:"HMAC secret for bearer tokens" required:"true"`
	UploadDir     string `long:"upload-dir" env:"UPLOAD_DIR" default:"uploads" description:"directory for avatar uploads"`
	BaseURL       string `long:"base-url" env:"BASE_URL" default:"http://localhost:8080" description:"public base URL used in avatar links"`
	MaxConnsPerIP int    `long:"max-conns-per-ip" env:"MAX_CONNECTIONS_PER_IP" default:"10" description:"concurrent realtime connections allowed per IP"`
	AuthPerMin    int    `long:"auth-per-min" env:"AUTH_ATTEMPTS_PER_MIN" default:"5" description:"auth attempts allowed per IP per minute"`
	LogLevel      string `short:"l" long:"loglevel" default:"info" description:"set the logging level [debug, info, notice, warning, error, critical]"`
	LogFile       string `long:"logfile" description:"also write logs to this rotated file"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	if err := debug.Setup(debug.Options{File: opts.LogFile, Stdout: true, Level: opts.LogLevel}); err != nil {
		return err
	}
	if debug.ParseLevel(opts.LogLevel) < logging.DEBUG {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := storage.Open(opts.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	fileStore, err := files.New(opts.UploadDir, opts.BaseURL)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{MaxConnsPerIP: opts.MaxConnsPerIP, AuthPerMinute: opts.AuthPerMin})
	defer limiter.Stop()

	authSvc := auth.New(opts.JWTSecret)
	hub := ws.NewHub(store, authSvc, limiter)

	router := gin.New()
	router.Use(requestLogger(), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Errorf("panic recovered method=%s path=%s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	router.MaxMultipartMemory = files.MaxAvatarSize + 1<<20
	handlers.New(store, authSvc, fileStore, limiter, hub).Routes(router)

	srv := &http.Server{
		Addr:              ":" + opts.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Infof("server starting on :%s", opts.Port)
		log.Infof("rate limits: %d connections/IP, %d auth attempts/min", opts.MaxConnsPerIP, opts.AuthPerMin)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Notice("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := fmt.Sprintf("HTTP %d %s %s ip=%s duration=%s",
			status, c.Request.Method, c.Request.URL.Path, c.ClientIP(),
			time.Since(start).Truncate(time.Millisecond))
		switch {
		case status >= http.StatusInternalServerError:
			log.Error(line)
		case status >= http.StatusBadRequest:
			log.Info(line)
		default:
			log.Debug(line)
		}
	}
}

// Command ephimg-demo is a minimal, illustrative HTTP adapter around the
// upload/access core. It is not part of the tested, invariant-bearing
// surface of this module (see access and upload); it exists only to show
// how a real frontend would wire token minting, storage, and access
// control together.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/fleetpx/ephimg/access"
	"github.com/fleetpx/ephimg/blob"
	"github.com/fleetpx/ephimg/blob/dualblob"
	"github.com/fleetpx/ephimg/blob/fileblob"
	"github.com/fleetpx/ephimg/blob/minioblob"
	"github.com/fleetpx/ephimg/config"
	"github.com/fleetpx/ephimg/index"
	"github.com/fleetpx/ephimg/index/memindex"
	"github.com/fleetpx/ephimg/index/redisindex"
	"github.com/fleetpx/ephimg/upload"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file (defaults baked in if omitted)")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	log := logrus.New()

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("ephimg-demo: loading config")
		}
		cfg = *loaded
	}

	bucket, err := openBucket(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("ephimg-demo: opening blob store")
	}
	idx, err := openIndex(cfg)
	if err != nil {
		log.WithError(err).Fatal("ephimg-demo: opening metadata index")
	}

	accepted, err := cfg.AcceptedMIMETypes()
	if err != nil {
		log.WithError(err).Fatal("ephimg-demo: config")
	}

	coordinator := upload.NewCoordinator(bucket, idx, nil, cfg.Upload.MaxUploadBytes, cfg.URLTTL(), accepted, log)
	arbiter := access.NewArbiter(bucket, idx, nil, cfg.ClockSkewTolerance(), log)

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", uploadHandler(coordinator, log))
	mux.HandleFunc("/image/", accessHandler(arbiter, log))

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", *addr).Info("ephimg-demo: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("ephimg-demo: serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("ephimg-demo: shutdown")
	}
}

func openBucket(cfg config.Config, log *logrus.Logger) (*blob.Bucket, error) {
	switch cfg.Blob.Driver {
	case "local":
		return fileblob.OpenBucket(cfg.Blob.LocalDir)
	case "minio":
		return openMinioBucket(cfg)
	case "local,minio":
		local, err := fileblob.OpenBucket(cfg.Blob.LocalDir)
		if err != nil {
			return nil, err
		}
		remote, err := openMinioBucket(cfg)
		if err != nil {
			return nil, err
		}
		return dualblob.OpenBucket(local, remote, log), nil
	default:
		return fileblob.OpenBucket(cfg.Blob.LocalDir)
	}
}

func openMinioBucket(cfg config.Config) (*blob.Bucket, error) {
	client, err := minio.New(cfg.Blob.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewEnvAWS(),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	return minioblob.OpenBucket(context.Background(), client, cfg.Blob.MinioBucket)
}

func openIndex(cfg config.Config) (*index.Index, error) {
	switch cfg.Index.Driver {
	case "redis":
		pool := &redis.Pool{
			MaxIdle:     8,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", cfg.Index.RedisAddr)
			},
		}
		return redisindex.OpenIndex(pool,
			redisindex.Prefix(cfg.Index.RedisPrefix),
			redisindex.Skew(cfg.ClockSkewTolerance()),
		)
	case "mem":
		return memindex.OpenIndex(), nil
	default:
		return memindex.OpenIndex(), nil
	}
}

func uploadHandler(c *upload.Coordinator, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		contentType := r.Header.Get("Content-Type")
		body, err := io.ReadAll(io.LimitReader(r.Body, int64(c.MaxUploadBytes)+1))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		res, err := c.Upload(r.Context(), upload.UploadInput{Bytes: body, ContentType: contentType})
		if err != nil {
			log.WithError(err).Warn("ephimg-demo: upload rejected")
			http.Error(w, "upload rejected", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "/image/"+res.Token.String())
	}
}

// accessHandler maps every access.Denied reason to the same HTTP 404;
// this collapsing is the point, not an oversight.
func accessHandler(a *access.Arbiter, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.URL.Path, "/image/")

		outcome, err := a.Access(r.Context(), tok)
		if err != nil {
			log.WithError(err).Error("ephimg-demo: access arbiter failure")
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		switch o := outcome.(type) {
		case access.Allowed:
			w.Header().Set("Content-Type", o.Record.ContentType)
			w.Write(o.Bytes)
		case access.Denied:
			http.Error(w, "not found", http.StatusNotFound)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}
}

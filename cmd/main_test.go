package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/laptrace/internal/config"
	"github.com/okian/laptrace/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.New(context.Background())
	cfg.DatabasePath = filepath.Join(t.TempDir(), "laptrace.db")
	cfg.WorkerCount = 2
	cfg.QueueSize = 16
	cfg.CORSOrigins = "https://dash.example"
	return cfg
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When loading configuration from the environment", func() {
			_ = os.Setenv("LAPTRACE_ADDR", ":8080")
			_ = os.Setenv("LAPTRACE_QUEUE_SIZE", "1000")
			_ = os.Setenv("LAPTRACE_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("LAPTRACE_ADDR")
				_ = os.Unsetenv("LAPTRACE_QUEUE_SIZE")
				_ = os.Unsetenv("LAPTRACE_WORKER_COUNT")
			}()

			cfg, err := config.Load(context.Background())

			convey.Convey("Then the overrides apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When wiring the service against an empty store", func() {
			ctx := context.Background()
			cfg := testConfig(t)

			svc, closeStore, err := buildService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer closeStore()
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			handler := newHandler(ctx, cfg, svc, logger.Nop())
			get := func(target string, header http.Header) *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
				for k, v := range header {
					req.Header[k] = v
				}
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				return w
			}

			convey.Convey("Then stats report the built-in track catalog", func() {
				w := get("/stats", nil)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"tracks":6`)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"started":true`)
			})

			convey.Convey("Then an analysis over missing sessions is an empty result", func() {
				w := get("/api/v1/track-dominance?session_name=Monaco&identifier=Q&session_year=2024&drivers=LEC", nil)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(strings.TrimSpace(w.Body.String()), convey.ShouldEqual, "[]")
			})

			convey.Convey("Then the docs and metrics are served", func() {
				convey.So(get("/openapi.yaml", nil).Code, convey.ShouldEqual, http.StatusOK)
				convey.So(get("/healthz", nil).Code, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("Then allowed origins get CORS headers", func() {
				w := get("/stats", http.Header{"Origin": {"https://dash.example"}})
				convey.So(w.Header().Get("Access-Control-Allow-Origin"), convey.ShouldEqual, "https://dash.example")

				other := get("/stats", http.Header{"Origin": {"https://elsewhere.example"}})
				convey.So(other.Header().Get("Access-Control-Allow-Origin"), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the database path cannot be opened", func() {
			cfg := testConfig(t)
			cfg.DatabasePath = filepath.Join(t.TempDir(), "missing", "dir", "laptrace.db")

			_, _, err := buildService(context.Background(), cfg, logger.Nop())

			convey.Convey("Then wiring fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("When the context ends they return", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("When updating system metrics directly", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}

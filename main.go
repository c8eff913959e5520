package main

import (
	"context"
	_ "embed"

	"github.com/gin-contrib/cors"
	"github.com/gosoline-project/httpserver"
	"github.com/justtrackio/gosoline/pkg/application"
	"github.com/justtrackio/gosoline/pkg/cfg"
	"github.com/justtrackio/gosoline/pkg/log"
)

//go:embed config.dist.yml
var configDist []byte

func main() {
	application.New(
		application.WithConfigDebug,
		application.WithConfigBytes(configDist, "yml"),
		application.WithConfigEnvKeyReplacer(cfg.DefaultEnvKeyReplacer),
		application.WithConfigFileFlag,
		application.WithConfigSanitizers(cfg.TimeSanitizer),
		application.WithLoggerHandlersFromConfig,
		application.WithUTCClock(true),
		application.WithModuleFactory("warmup", NewModuleWarmup),
		application.WithModuleFactory("http", httpserver.NewServer("default", func(ctx context.Context, config cfg.Config, logger log.Logger, router *httpserver.Router) error {
			router.Use(cors.Default())

			router.Group("/api/export").HandleWith(httpserver.With(NewHandlerStats, func(r *httpserver.Router, handler *HandlerStats) {
				r.GET("/stats", httpserver.BindN(handler.GetStats))
				r.GET("/tables", httpserver.BindN(handler.ListTables))
				r.GET("/table", httpserver.Bind(handler.GetTable))
			}))

			router.Group("/api/verified-contracts").HandleWith(httpserver.With(NewHandlerDaily, func(r *httpserver.Router, handler *HandlerDaily) {
				r.GET("/daily", httpserver.Bind(handler.GetDaily))
				r.GET("/summary", httpserver.BindN(handler.GetSummary))
			}))

			return nil
		})),
	).Run()
}

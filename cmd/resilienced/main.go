package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/talkincode/resilienced/config"
	"github.com/talkincode/resilienced/internal/adminapi"
	"github.com/talkincode/resilienced/internal/app"
	"github.com/talkincode/resilienced/internal/intent"
	"github.com/talkincode/resilienced/internal/metrics"
	"github.com/talkincode/resilienced/internal/webserver"
	"github.com/talkincode/resilienced/internal/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var (
	BuildVersion = "develop"
	BuildTime    = ""
)

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "", "config yaml file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
	printcfg = flag.Bool("printcfg", false, "print config")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("resilienced %s %s\n", BuildVersion, BuildTime)
		return
	}
	if *h {
		flag.Usage()
		return
	}

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *printcfg {
		out, _ := yaml.Marshal(cfg)
		fmt.Println(string(out))
		return
	}

	if err := app.SetTimezone(cfg.System.Location); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	application := app.NewApplication(cfg)
	if err := application.Init(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *initdb {
		application.InitDb()
		zap.S().Info("database initialized")
		application.Release()
		return
	}

	err = run(application, cfg)
	application.Release()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(application *app.Application, cfg *config.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	hub := websocket.NewHub(ctx)
	go hub.Run()
	defer hub.Stop()
	detach, err := hub.Attach(application.Bus(), application.Evaluator().Topic())
	if err != nil {
		return err
	}
	defer detach()

	adminapi.Init()
	intent.Init()
	server := webserver.NewWebServer(application, cfg.Web)
	server.Echo().Use(echoprometheus.NewMiddleware("resilienced"))
	server.Echo().GET("/ws/visualization", websocket.NewHandler(hub).ServeWS)
	server.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.S().Infof("resilienced %s listening on %s:%d", BuildVersion, cfg.Web.Host, cfg.Web.Port)
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.S().Info("shutting down")
		return server.Shutdown(context.Background())
	})
	return g.Wait()
}

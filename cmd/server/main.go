package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kataras/iris/v12"

	"dashcam-geotag/internal/cache"
	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/events"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	port := flag.Int("port", cfg.Server.Port, "Server port")
	videos := flag.String("videos", "", "Comma separated video files to load at startup (optional, can be posted via API)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if *debug {
		logging.SetDebugMode(true)
	}
	log := logging.Logger()

	// 查找可用端口
	cfg.Server.Port = findAvailablePort(cfg.Server.Host, *port)

	fmt.Println("============================================================")
	fmt.Println("Dashcam geotag server")
	fmt.Println("============================================================")
	fmt.Printf("监听地址: http://%s\n", cfg.Server.Addr())
	fmt.Println("============================================================")

	var store cache.Store
	if cfg.Cache.ValkeyAddr != "" {
		v, err := cache.NewValkey(cfg.Cache.ValkeyAddr)
		if err != nil {
			logging.LogWarn("valkey unavailable, falling back to memory cache", "addr", cfg.Cache.ValkeyAddr, "error", err)
			store = cache.NewMemory()
		} else {
			store = v
		}
	} else {
		store = cache.NewMemory()
	}
	defer store.Close()

	var pub events.Publisher
	if cfg.NATS.URL != "" {
		n, err := events.NewNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			logging.LogWarn("nats unavailable, sequences will not be published", "url", cfg.NATS.URL, "error", err)
		} else {
			pub = n
			defer n.Close()
		}
	}

	lib := server.NewLibrary(cfg, store, log)
	if *videos != "" {
		paths := strings.Split(*videos, ",")
		go func() {
			logging.LogDebug("initial load", "videos", len(paths))
			if err := lib.Load(context.Background(), paths); err != nil {
				logging.LogError("initial load failed", "error", err)
				return
			}
			logging.LogInfo("initial load done", "fixes", lib.Status().Fixes)
		}()
	}

	app := iris.New()
	if logging.IsDebugMode() {
		app.Logger().SetLevel("debug")
	} else {
		app.Logger().SetLevel("warn")
	}

	// CORS
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type")
		if ctx.Method() == "OPTIONS" {
			ctx.StatusCode(204)
			return
		}
		ctx.Next()
	})

	server.RegisterRoutes(app, server.NewHandlers(lib, pub, log))

	// 优雅关闭
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		fmt.Println("\n正在关闭...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Shutdown(ctx)
	}()

	fmt.Printf("\n服务器已启动: http://%s\n", cfg.Server.Addr())
	if err := app.Listen(cfg.Server.Addr()); err != nil && !errors.Is(err, iris.ErrServerClosed) {
		logging.LogError("server error", "error", err)
	}
}

// findAvailablePort 查找可用端口，如果指定端口被占用则递增
func findAvailablePort(host string, startPort int) int {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err == nil {
			ln.Close()
			return port
		}
	}
	return startPort // 回退到原始端口
}

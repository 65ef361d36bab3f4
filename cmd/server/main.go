package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"pairchat/internal/bootstrap"
	"pairchat/internal/server"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Log.Error("close resources failed", "error", err)
		}
	}()

	gin.SetMode(app.Config.App.GinMode)
	router := server.NewRouter(server.Deps{
		Store:       app.Store,
		Hub:         app.Hub,
		Chat:        app.Chat,
		TokenConfig: app.TokenConfig(),
		Log:         app.Log,
	})

	srv := server.NewHTTPServer(app.Config, router)
	go func() {
		app.Log.Info("server starting", "addr", srv.Addr, "storage", app.Config.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	waitForShutdown(srv)
}

func waitForShutdown(srv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
}

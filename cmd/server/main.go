package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/roomtalk/roomtalk/internal/item"
	"github.com/roomtalk/roomtalk/internal/server"
	"github.com/roomtalk/roomtalk/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log.Println("Starting roomtalk server...")

	cfg := server.NewConfigFromEnv()
	ctx := context.Background()

	// A failed gateway connection is not fatal to the process: the server
	// keeps listening but reports unready and every persistence call fails
	// until a restart.
	gateway, err := store.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Printf("Starting without a usable persistence gateway: %v", err)
	}

	srv := server.New(cfg, gateway, gateway.Ping)

	router := srv.Routes()
	catalog := item.NewCatalog(item.Item{
		ID:          1,
		Name:        "user1",
		Description: "sample item",
		Price:       1234,
	})
	catalog.Register(router)

	httpServer := server.CreateServer(cfg.Port, router)

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	log.Println("Shutting down server...")

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	srv.CloseConnections()

	if err := gateway.Close(ctx); err != nil {
		log.Printf("Error disconnecting from MongoDB: %v", err)
	}

	log.Println("Server exiting")
}

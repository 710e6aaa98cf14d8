package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "snowbrawl.db", "SQLite database path (empty to disable persistence)")
	tuningPath := flag.String("tuning", "", "YAML tuning override file")
	flag.Parse()

	tun, err := LoadTuning(*tuningPath)
	if err != nil {
		log.Fatalf("tuning: %v", err)
	}

	var db *DB
	var analytics *Analytics
	if *dbPath != "" {
		db, err = OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		analytics = NewAnalytics(db)
		defer analytics.Close()
	}

	oracle := NewFieldMap(tun.MapWidth, tun.MapHeight, DefaultObstacles(&tun))

	hub := NewHub(&tun, oracle, NewScheduler(), db, analytics)
	go hub.Run()

	mux := SetupRoutes(hub)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s, map %s", *addr, tun.MapName)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	server.Close()
}

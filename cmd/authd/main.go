package main

import (
	"context"
	"flag"
	"log"

	"github.com/tech-arch1tect/authd/app"
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/database"
	"github.com/tech-arch1tect/authd/handlers/authhttp"
)

var version = "dev"

func main() {
	migrateOnly := flag.Bool("migrate", false, "apply the SQL migrations and exit")
	flag.Parse()

	log.SetPrefix("[AUTHD] ")
	authhttp.Version = version

	if *migrateOnly {
		if err := migrate(); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	application, err := app.NewApp().WithAutoConfig().Build()
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}

	application.Run()
}

func migrate() error {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		return err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(context.Background(), db, cfg.Database.Driver)
}

package main

import (
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"almacen/m/internal/api"
	"almacen/m/internal/catalog"
	"almacen/m/internal/config"
	"almacen/m/internal/database"
	"almacen/m/internal/engine"
	"almacen/m/internal/migrations"
	"almacen/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.LoadProducts(db, cfg.ProductCSV)

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	eng := engine.New(db, logger)
	cat := catalog.New(db)
	handler := api.New(db, eng, cat, cfg.Secret)

	logger.Info("warehouse server starting", zap.String("port", cfg.HTTPPort))
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

package main

import (
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"chatwire/internal/auth"
	"chatwire/internal/config"
	"chatwire/internal/server"
	"chatwire/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	st, err := store.Open(cfg.DataDir, log.With("component", "store"))
	if err != nil {
		log.Error("store open failed", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "chatwire",
	}

	handler := server.NewHandler(server.Deps{
		Store:       st,
		TokenConfig: tokenCfg,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})

	log.Info("listening", "port", cfg.Port)
	if err := server.Run(cfg, handler); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

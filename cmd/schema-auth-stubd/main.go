// Command schema-auth-stubd runs the local stand-in for the platform auth
// API, seeded with a development account.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/SchemaBio/schema-platform-sub003/config"
	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
	"github.com/SchemaBio/schema-platform-sub003/internal/stubserver"
	pkglog "github.com/SchemaBio/schema-platform-sub003/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	logger := pkglog.New(cfg.AppEnv)

	srv := stubserver.New(cfg, pkglog.Component(logger, "stub"))
	if err := srv.AddUser("dev@schemabio.test", "schema-dev-password", domain.User{
		ID:    "dev-1",
		Email: "dev@schemabio.test",
		Name:  "Dev User",
		Role:  "analyst",
	}); err != nil {
		log.Fatalf("failed to seed dev account: %v", err)
	}

	logger.Info().Str("addr", cfg.StubHost+":"+cfg.StubPort).Msg("stub auth server starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("stub server stopped: %v", err)
	}
}

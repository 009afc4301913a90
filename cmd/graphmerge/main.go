package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/graphmerge/internal/app"
)

var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	if err := app.New(version).Execute(ctx, os.Args[1:]); err != nil {
		cancel()
		app.ExitOnError(err)
	}
}

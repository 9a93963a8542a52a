package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trialworks/ars-backend/internal/app"
	"github.com/trialworks/ars-backend/internal/pkg/shutdown"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a.Start(ctx)

	if err := a.Run(ctx); err != nil {
		fmt.Printf("server exited: %v\n", err)
		os.Exit(1)
	}
}

package analysis

import (
	"context"

	"github.com/firewatch-ai/firewatch/internal/api"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// Serve runs the HTTP API until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, c *Components) error {
	server := api.NewServer(c.Settings, c.APIOptions()...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	GetLogger().Info("shutdown signal received", logger.String("address", server.Address()))
	// ctx is already done; the shutdown gets its own deadline
	if err := server.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	return <-errCh
}

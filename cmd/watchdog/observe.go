package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/delivery"
	"github.com/sumitx99/ethical-web-watchdog/internal/message"
)

type observeOptions struct {
	listen   string
	tabID    int
	register string
	apiKey   string
	logLevel string
}

func observeCmd() *cobra.Command {
	opts := observeOptions{}
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Run a gRPC observer for one tab and log every push it receives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.apiKey == "" {
				opts.apiKey = os.Getenv("WATCHDOG_API_KEY")
			}
			logger := mustBuildLogger(opts.logLevel)
			defer logger.Sync() //nolint:errcheck // best-effort flush
			return runObserve(cmd.Context(), opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "127.0.0.1:50061", "gRPC listen address")
	cmd.Flags().IntVar(&opts.tabID, "tab", 0, "tab id to observe")
	cmd.Flags().StringVar(&opts.register, "register", "", "watchdog base URL to register with, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key for registration (default $WATCHDOG_API_KEY)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

func runObserve(ctx context.Context, opts observeOptions, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.listen, err)
	}

	srv, health := delivery.NewObserverGRPCServer(func(_ context.Context, msg message.Envelope) error {
		fields := []zap.Field{
			zap.String("type", string(msg.Type)),
			zap.Int("tab_id", opts.tabID),
		}
		if msg.InteractionID != "" {
			fields = append(fields, zap.String("interaction_id", msg.InteractionID))
		}
		if msg.Analysis != nil {
			fields = append(fields, zap.Any("analysis", msg.Analysis))
		}
		logger.Info("push received", fields...)
		return nil
	}, logger)

	go func() {
		logger.Info("observer listening", zap.String("addr", lis.Addr().String()), zap.Int("tab_id", opts.tabID))
		if err := srv.Serve(lis); err != nil {
			logger.Error("observer server failed", zap.Error(err))
		}
	}()

	client := &http.Client{Timeout: 10 * time.Second}
	if opts.register != "" {
		if err := registerObserver(ctx, client, opts, lis.Addr().String()); err != nil {
			srv.Stop()
			return err
		}
		logger.Info("observer registered", zap.String("watchdog", opts.register))
	}

	<-ctx.Done()
	logger.Info("observer shutting down")

	if opts.register != "" {
		// The serve context is gone; unregister on a fresh one.
		unregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := unregisterObserver(unregCtx, client, opts); err != nil {
			logger.Warn("observer unregister failed", zap.Error(err))
		}
		cancel()
	}
	health.Shutdown()
	srv.GracefulStop()
	return nil
}

func observerURL(opts observeOptions) string {
	return fmt.Sprintf("%s/v1/tabs/%d/observer", strings.TrimRight(opts.register, "/"), opts.tabID)
}

func registerObserver(ctx context.Context, client *http.Client, opts observeOptions, addr string) error {
	body, err := json.Marshal(map[string]string{"addr": addr})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, observerURL(opts), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("register observer: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+opts.apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("register observer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("register observer: unexpected status %s", resp.Status)
	}
	return nil
}

func unregisterObserver(ctx context.Context, client *http.Client, opts observeOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, observerURL(opts), nil)
	if err != nil {
		return err
	}
	if opts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+opts.apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

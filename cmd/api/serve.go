package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"retailgate.org/internal/httpapi"
)

// servers bundles the listeners run for the lifetime of the process.
type servers struct {
	http            *http.Server
	httpLis         net.Listener
	grpc            *grpc.Server
	grpcLis         net.Listener
	health          *httpapi.GRPCServer
	healthInterval  time.Duration
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// serve runs both servers until ctx is cancelled or one of them fails, then
// shuts both down. The first server error is returned.
func (s servers) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http listening", zap.String("addr", s.httpLis.Addr().String()))
		if err := s.http.Serve(s.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("grpc listening", zap.String("addr", s.grpcLis.Addr().String()))
		if err := s.grpc.Serve(s.grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	if s.health != nil {
		g.Go(func() error {
			s.health.Run(gctx, s.healthInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.grpc.GracefulStop()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		s.logger.Error("server failed", zap.Error(err))
		return err
	}
	s.logger.Info("stopped")
	return nil
}

// Command mock-backend serves deterministic replies in both upstream
// dialects, for exercising the gateway without vendor credentials.
//
//	POST /aifm/{function}        prefixed SSE ("data: {...}", "data: [DONE]")
//	POST /nemo/{model}/chat      newline-delimited {"text": ...}
//
// Point a provider at it with base_url http://localhost:9090/aifm or
// http://localhost:9090/nemo.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("mock backend failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var port int
	var k knobs

	cmd := &cobra.Command{
		Use:           "mock-backend",
		Short:         "Serve deterministic AI Foundation Models and NeMo LLM streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(":"+strconv.Itoa(port), k)
		},
	}

	f := cmd.Flags()
	f.IntVar(&port, "port", 9090, "listen port (MOCK_PORT overrides)")
	f.IntVar(&k.chunkSize, "chunk-size", 0, "split the body into writes of this many bytes; 0 writes whole lines")
	f.BoolVar(&k.noTrailingNewline, "no-trailing-newline", false, "omit the newline after the last line")
	f.IntVar(&k.failAfter, "fail-after", -1, "send an error payload after this many deltas; -1 never")
	f.DurationVar(&k.delay, "delay", 0, "pause between writes")

	if v, err := strconv.Atoi(os.Getenv("MOCK_PORT")); err == nil {
		port = v
		f.Lookup("port").DefValue = strconv.Itoa(v)
	}
	return cmd
}

func serve(addr string, k knobs) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(k),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mock backend starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

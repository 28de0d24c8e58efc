package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/httpapi"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/poll"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the job store over HTTP and harvest on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := logger.New("serve")

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := openResources(runCtx, cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			// Load config and keep it reloadable
			var cfgVal atomic.Value // stores config.Config
			cfgVal.Store(cfg)

			hub := events.NewHub()
			runner := poll.NewRunner(&cfgVal, res.builder(), hub, logger.New("harvest"))
			if !noSchedule {
				poll.StartPoller(runCtx, runner, cfg.HarvestInterval())
			}

			mux := httpapi.NewMux(httpapi.Deps{
				DB:          res.db.Pool,
				Hub:         hub,
				CfgVal:      &cfgVal,
				UserCfgPath: ctx.configPath,
				LoadCfg:     ctx.reload,
				Status:      res.status,
				Harvest:     runner,
				BaseCtx:     runCtx,
				Log:         logger.New("http"),
			})

			token := strings.TrimSpace(os.Getenv("JOBHARVEST_SHUTDOWN_TOKEN"))
			if token == "" {
				if token, err = randomToken(16); err != nil {
					return err
				}
			}
			mux.HandleFunc("/shutdown", shutdownHandler(token, stop))

			if addr == "" {
				addr = fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.Info().Str("addr", "http://"+ln.Addr().String()).Str("db", cfg.SQLitePath()).Msg("engine listening")

			srv := &http.Server{
				Handler:           httpapi.Handler(mux, logger.New("http")),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()

			select {
			case <-runCtx.Done():
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.LogError("http shutdown", err)
			}
			// A running harvest sees runCtx cancelled and saves its artifacts.
			runner.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default 127.0.0.1:<app.port>)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Only harvest when POST /harvest/run is called")
	return cmd
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// shutdownHandler stops the server for local callers that present the
// X-Shutdown-Token header.
func shutdownHandler(token string, stop context.CancelFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "127.0.0.1" && host != "::1" && host != "localhost" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		got := r.Header.Get("X-Shutdown-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("shutting down\n"))
		stop()
	}
}

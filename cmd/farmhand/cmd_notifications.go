package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/erauner12/farmhand/internal/auth"
	"github.com/erauner12/farmhand/internal/domain"
	"github.com/erauner12/farmhand/internal/storage"
)

func notificationsCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notes"},
		Short:   "Read notifications",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List notifications; unread ones are marked with *",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			out := cmd.OutOrStdout()
			if _, err := a.requireSession(cmd.Context(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			items, err := a.notes.List(cmd.Context())
			if err != nil {
				a.reportStatus(cmd.ErrOrStderr())
				return err
			}
			for _, n := range items {
				mark := " "
				if !n.IsRead {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-4s %s: %s\n", mark, n.ID, n.Title, n.Message)
			}
			fmt.Fprintln(out, a.tr.T("notifications.unread", a.notes.UnreadCount()))
			return nil
		},
	})

	var all bool
	read := &cobra.Command{
		Use:   "read [id...]",
		Short: "Mark notifications as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if !all && len(args) == 0 {
				return errors.New("pass notification ids or --all")
			}
			if _, err := a.requireSession(cmd.Context(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			if all {
				if err := a.notes.MarkAllAsRead(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("notifications.all_read"))
				return nil
			}
			if _, err := a.notes.RefreshUnreadCount(cmd.Context()); err != nil {
				return err
			}
			for _, id := range args {
				if err := a.notes.MarkAsRead(cmd.Context(), domain.ID(id)); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("notifications.unread", a.notes.UnreadCount()))
			return nil
		},
	}
	read.Flags().BoolVar(&all, "all", false, "mark every notification as read")
	cmd.AddCommand(read)

	cmd.AddCommand(watchCmd(get))
	return cmd
}

func watchCmd(get func() *app) *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the unread count until interrupted",
		Long: `watch polls the unread notification count and prints it when it
changes. It follows connectivity, reacts to logins and logouts made by other
farmhand processes sharing the state file, and can expose client metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			out := cmd.OutOrStdout()
			if interval <= 0 {
				interval = a.cfg.PollInterval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.auth.Init(ctx); err != nil {
				a.reportStatus(cmd.ErrOrStderr())
			}

			a.notes.OnChange(func(n int) {
				fmt.Fprintln(out, a.tr.T("notifications.unread", n))
			})
			// Nobody is there to dismiss the notice, so an expired session ends here
			a.auth.Subscribe(func(st auth.State) {
				if st.SessionExpired {
					fmt.Fprintln(cmd.ErrOrStderr(), a.tr.T("auth.session_expired"))
					a.auth.HandleSessionExpiredRedirect()
				}
			})
			a.network.Subscribe(func(online bool) {
				if !online {
					fmt.Fprintln(cmd.ErrOrStderr(), a.tr.T("status.offline"))
				}
			})

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				a.notes.Poll(gctx, interval)
				return nil
			})
			g.Go(func() error {
				a.prober.Run(gctx, a.network, a.cfg.ProbeInterval)
				return nil
			})

			if fs, ok := a.store.(*storage.FileStore); ok {
				g.Go(func() error {
					return fs.Watch(gctx, func(key string) {
						if key == a.tokens.Key() {
							a.auth.SyncFromStore()
						}
					})
				})
			}

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				g.Go(func() error {
					log.Info().Str("addr", metricsAddr).Msg("serving client metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (defaults to FARMHAND_POLL_INTERVAL)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/together/internal/sharing"
)

// remainingEvery es cada cuánto se imprime el tiempo restante
const remainingEvery = 30 * time.Second

func shareCmd(opts *options) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Share your location until the time runs out or you press Ctrl+C",
		Long: `Share your location with your partner for a limited time.

A session that is still live on the server is resumed instead of starting
a new one. Ctrl+C stops sharing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if err := a.requireToken(); err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			ctrl := a.newController()
			defer ctrl.Close()
			events, unsubscribe := ctrl.Subscribe()
			defer unsubscribe()

			resumed, err := ctrl.Resume(ctx)
			if err != nil {
				return fmt.Errorf("check current session: %w", err)
			}
			if resumed {
				snap := ctrl.Snapshot()
				fmt.Fprintf(a.out, "🔁 Resumed the session on the server (%s left)\n", sharing.FormatRemaining(snap.Session.RemainingSeconds))
			} else {
				if minutes == 0 {
					if minutes, err = a.chooseDuration(ctx); err != nil {
						return err
					}
				}
				if err := ctrl.Start(ctx, minutes); err != nil {
					return explain(err)
				}
			}
			return a.follow(ctx, ctrl, events)
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "Session length in minutes (prompted when empty)")
	return cmd
}

// follow imprime eventos hasta que la sesión termine o ctx se cancele.
// Cancelar ctx detiene la sesión en el servidor.
func (a *app) follow(ctx context.Context, ctrl *sharing.Controller, events <-chan sharing.Event) error {
	ticker := a.clock.NewTicker(remainingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(a.out, ev, a.clock.Now())
			switch ev.Type {
			case sharing.EventStopped, sharing.EventExpired, sharing.EventEndedRemotely:
				return nil
			}
		case <-ticker.C():
			snap := ctrl.Snapshot()
			if snap.State == sharing.Active {
				fmt.Fprintf(a.out, "⏳ %s left\n", sharing.FormatRemaining(snap.Session.RemainingSeconds))
			}
		case <-ctx.Done():
			fmt.Fprintln(a.out, "\n🛑 Stopping...")
			stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
			defer cancel()
			if err := ctrl.Stop(stopCtx); err != nil && !errors.Is(err, sharing.ErrNotActive) {
				return explain(err)
			}
			fmt.Fprintln(a.out, "✅ Sharing stopped")
			return nil
		}
	}
}

func (a *app) chooseDuration(ctx context.Context) (int, error) {
	fmt.Fprintln(a.out, "How long do you want to share?")
	for i, m := range sharing.DurationOptions {
		fmt.Fprintf(a.out, "%d) %s\n", i+1, sharing.FormatDuration(m))
	}
	for {
		fmt.Fprint(a.out, "Select option: ")
		line, err := readLine(ctx, a.in)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(sharing.DurationOptions) {
			return sharing.DurationOptions[n-1], nil
		}
		fmt.Fprintln(a.out, "Invalid option")
	}
}

// explain traduce los errores del controlador a algo accionable
func explain(err error) error {
	switch {
	case errors.Is(err, sharing.ErrPermissionDenied):
		return fmt.Errorf("location permission is required to share: %w", err)
	case errors.Is(err, sharing.ErrPositionUnavailable):
		return fmt.Errorf("could not get your position, check POSITION_SOURCE: %w", err)
	case errors.Is(err, sharing.ErrGatewayUnreachable):
		return fmt.Errorf("server unreachable, try again or use --demo: %w", err)
	case errors.Is(err, sharing.ErrBusy):
		return fmt.Errorf("a request is already in progress: %w", err)
	}
	return err
}

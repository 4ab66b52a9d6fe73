package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/yourorg/together/internal/sharing"
)

func menuCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if err := a.requireToken(); err != nil {
				return err
			}
			return a.menu(cmd.Context())
		},
	}
}

func (a *app) menu(ctx context.Context) error {
	ctrl := a.newController()
	defer ctrl.Close()

	// Los eventos se imprimen mientras el menú espera input
	events, unsubscribe := ctrl.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if ev.Type == sharing.EventPosition {
				continue // demasiado ruido para el menú
			}
			printEvent(a.out, ev, a.clock.Now())
		}
	}()
	defer wg.Wait()
	defer unsubscribe()

	if resumed, err := ctrl.Resume(ctx); err != nil {
		fmt.Fprintf(a.out, "⚠️  Could not check the current session: %v\n", err)
	} else if resumed {
		fmt.Fprintln(a.out, "🔁 Resumed the session on the server")
	}

	for {
		snap := ctrl.Snapshot()
		fmt.Println("==== together ====")
		if snap.State == sharing.Active {
			fmt.Printf("Sharing · %s left\n", sharing.FormatRemaining(snap.Session.RemainingSeconds))
		}
		fmt.Println("1) Start sharing")
		fmt.Println("2) Stop sharing")
		fmt.Println("3) Status")
		fmt.Println("4) Partner")
		fmt.Println("5) Health check API")
		fmt.Println("6) Exit")
		fmt.Print("Select option: ")
		choice, err := readLine(ctx, a.in)
		if err != nil {
			return nil
		}
		switch choice {
		case "1":
			minutes, err := a.chooseDuration(ctx)
			if err != nil {
				return nil
			}
			if err := ctrl.Start(ctx, minutes); err != nil {
				fmt.Println("Start:", explain(err))
			}
		case "2":
			if err := ctrl.Stop(ctx); err != nil {
				if errors.Is(err, sharing.ErrNotActive) {
					fmt.Println("Not sharing")
				} else {
					fmt.Println("Stop:", explain(err))
				}
			}
		case "3":
			status, err := a.gateway.FetchStatus(ctx)
			if err != nil {
				fmt.Println("Status: ERROR:", err)
				break
			}
			printStatus(a.out, status, a.clock.Now())
		case "4":
			p, err := ctrl.RefreshPartner(ctx)
			if err != nil {
				fmt.Println("Partner: ERROR:", err)
				break
			}
			printPartner(a.out, p, a.clock.Now())
		case "5":
			if err := a.client.Health(ctx); err != nil {
				fmt.Println("Health: ERROR:", err)
				break
			}
			fmt.Println("Health: OK")
		case "6":
			// una sesión activa sigue en el servidor hasta que expire
			if ctrl.Snapshot().State == sharing.Active {
				fmt.Println("Sharing continues on the server; run `together share` to pick it up")
			}
			fmt.Println("Bye")
			return nil
		default:
			fmt.Println("Invalid option")
		}
		fmt.Println()
	}
}

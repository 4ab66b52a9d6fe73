package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/together/internal/clock"
	"github.com/yourorg/together/internal/config"
	"github.com/yourorg/together/internal/gateway"
	"github.com/yourorg/together/internal/models"
	"github.com/yourorg/together/internal/position"
	"github.com/yourorg/together/internal/sharing"
)

func main() {
	config.LoadDotEnv()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options son los flags globales
type options struct {
	logLevel  string
	demo      bool
	assumeYes bool
}

func rootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "together",
		Short:         "Share your location with your partner for a limited time",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.demo, "demo", false, "Use the offline demo gateway (same as GATEWAY_MODE=demo)")
	cmd.PersistentFlags().BoolVarP(&opts.assumeYes, "yes", "y", false, "Grant location permission without prompting")

	cmd.AddCommand(
		loginCmd(opts),
		pairCmd(opts),
		healthCmd(opts),
		statusCmd(opts),
		partnerCmd(opts),
		shareCmd(opts),
		menuCmd(opts),
		seedCmd(),
	)
	return cmd
}

// app reúne las piezas que usan los comandos
type app struct {
	cfg     config.Client
	clock   clock.Clock
	logger  *slog.Logger
	in      *bufio.Reader
	out     io.Writer
	client  *gateway.Client
	gateway sharing.Gateway
	source  position.Source
	gate    *sharing.OncePermission
}

func newApp(opts *options) (*app, error) {
	cfg := config.LoadClient()
	if opts.demo {
		cfg.GatewayMode = config.GatewayDemo
	}

	a := &app{
		cfg:    cfg,
		clock:  clock.New(),
		logger: newLogger(opts.logLevel),
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	a.client = gateway.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.RequestTimeout)
	switch cfg.GatewayMode {
	case config.GatewayHTTP:
		a.gateway = a.client
	case config.GatewayDemo:
		fmt.Fprintln(a.out, "🧪 Demo mode: nothing leaves this machine")
		a.gateway = gateway.NewDemo(a.clock, gateway.DemoLatency)
	default:
		return nil, fmt.Errorf("unknown GATEWAY_MODE %q (want %s or %s)", cfg.GatewayMode, config.GatewayHTTP, config.GatewayDemo)
	}

	var raw position.Source
	switch cfg.PositionSource {
	case config.SourceSimulator:
		raw = position.NewSimulator(cfg.SimOriginLat, cfg.SimOriginLon, position.DefaultSimulatorConfig(), a.clock)
	case config.SourceNMEA:
		raw = position.NewNMEA(position.OpenNMEA(cfg.NMEASource), position.DefaultWatchOptions, a.clock, a.logger)
	default:
		return nil, fmt.Errorf("unknown POSITION_SOURCE %q (want %s or %s)", cfg.PositionSource, config.SourceSimulator, config.SourceNMEA)
	}
	a.source = position.NewFresh(raw, cfg.PositionTimeout, cfg.PositionMaxAge, a.clock)

	var gate sharing.PermissionGate = sharing.StaticPermission(true)
	if !opts.assumeYes {
		gate = sharing.PermissionFunc(a.promptPermission)
	}
	a.gate = sharing.NewOncePermission(gate)
	return a, nil
}

func (a *app) newController() *sharing.Controller {
	return sharing.NewController(a.gate, a.source, a.gateway, sharing.Config{
		PollInterval: a.cfg.PollInterval,
		Clock:        a.clock,
		Logger:       a.logger,
	})
}

// requireToken falla temprano si el modo http no tiene credenciales
func (a *app) requireToken() error {
	if a.cfg.GatewayMode == config.GatewayHTTP && a.client.Token() == "" {
		return fmt.Errorf("not logged in: run `together login` and export API_TOKEN")
	}
	return nil
}

// promptPermission es el diálogo de permiso de ubicación
func (a *app) promptPermission(ctx context.Context) (bool, error) {
	fmt.Fprint(a.out, "📍 Allow together to use your location while sharing? [y/N]: ")
	answer, err := readLine(ctx, a.in)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "s", "si", "sí":
		return true, nil
	}
	return false, nil
}

func readLine(ctx context.Context, r *bufio.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// signalContext se cancela con Ctrl+C o SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loginCmd(opts *options) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if username == "" {
				fmt.Fprint(a.out, "Username: ")
				if username, err = readLine(cmd.Context(), a.in); err != nil {
					return err
				}
			}
			if password == "" {
				fmt.Fprint(a.out, "Password: ")
				if password, err = readLine(cmd.Context(), a.in); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()
			resp, err := a.client.Login(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✅ Welcome %s (token valid until %s)\n", resp.User.Name, resp.ExpiresAt.Local().Format(time.DateTime))
			if resp.User.PartnerID == nil {
				fmt.Fprintln(a.out, "💡 No partner linked yet: run `together pair <username>`")
			}
			fmt.Fprintf(a.out, "export API_TOKEN=%s\n", resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	return cmd
}

func pairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <partner-username>",
		Short: "Link your account with your partner's",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if err := a.requireToken(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()
			if err := a.client.Pair(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "💞 Paired with %s\n", args[0])
			return nil
		},
	}
}

func healthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()
			if err := a.client.Health(ctx); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Health: OK (%s)\n", a.client.BaseURL())
			return nil
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sharing status stored on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if err := a.requireToken(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()
			status, err := a.gateway.FetchStatus(ctx)
			if err != nil {
				return err
			}
			printStatus(a.out, status, a.clock.Now())
			return nil
		},
	}
}

func partnerCmd(opts *options) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "partner",
		Short: "Show your partner's presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if err := a.requireToken(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			p, err := a.gateway.PartnerInfo(ctx)
			cancel()
			if err != nil {
				return err
			}
			printPartner(a.out, p, a.clock.Now())
			if !watch {
				return nil
			}
			if a.cfg.GatewayMode != config.GatewayHTTP {
				return fmt.Errorf("--watch needs the http gateway")
			}

			sigCtx, stop := signalContext()
			defer stop()
			feed, err := a.client.DialLive(sigCtx)
			if err != nil {
				return err
			}
			defer feed.Close()
			fmt.Fprintln(a.out, "👀 Watching, Ctrl+C to quit")
			return feed.Run(sigCtx, func(ev models.LiveEvent) {
				printLive(a.out, p.Username, ev, a.clock.Now())
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow live updates")
	return cmd
}

// Command sessionctl drives a session against a credential issuing API from
// the shell. The credential lives in the configured store between runs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joy-dx/gosession"
	"github.com/joy-dx/gosession/config"
	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/internal/fakeapi"
	"github.com/joy-dx/gosession/metrics"
	"github.com/joy-dx/gosession/relays"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const usage = `usage: sessionctl [-env file] [-v] <command> [args]

commands:
  login -id <identifier> -secret <secret> [-role USER]
  whoami
  get <path>
  logout
  watch [-metrics :9464]      keep the session alive and print notifications
  fakeapi [-addr :8080] -id <identifier> -secret <secret>
`

func main() {
	envFile := flag.String("env", ".env", "dotenv file with SESSION_* settings")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	app := &cli{out: os.Stdout, logger: logger, provide: gosession.ProvideSessionSvc}
	if err := app.run(ctx, *envFile, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries what a command needs from the process, so commands can run
// against a buffer and a private service.
type cli struct {
	out     io.Writer
	logger  *slog.Logger
	provide func(*config.SessionSvcConfig) *gosession.SessionSvc
}

var commands = map[string]bool{
	"login": true, "whoami": true, "get": true, "logout": true, "watch": true, "fakeapi": true,
}

func (c *cli) run(ctx context.Context, envFile, cmd string, args []string) error {
	if !commands[cmd] {
		return fmt.Errorf("unknown command %q", cmd)
	}
	if cmd == "fakeapi" {
		return c.serveFakeAPI(ctx, args)
	}

	cfg, err := config.FromEnv(envFile)
	if err != nil {
		return err
	}
	cfg.WithRelay(relays.NewSlogRelay(c.logger))

	var metricsAddr string
	if cmd == "watch" {
		fs := flag.NewFlagSet("watch", flag.ContinueOnError)
		fs.StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if metricsAddr != "" {
			reg := prometheus.NewRegistry()
			collector, err := metrics.NewCollector(reg)
			if err != nil {
				return err
			}
			cfg.WithMetrics(collector)
			go serveMetrics(ctx, c.logger, metricsAddr, reg)
		}
	}

	svc := c.provide(&cfg)
	defer svc.Close()
	if err := svc.Hydrate(ctx); err != nil {
		return err
	}
	if err := svc.WaitReady(ctx); err != nil {
		return err
	}

	switch cmd {
	case "login":
		return c.login(ctx, svc, args)
	case "whoami":
		return c.printJSON(svc.State())
	case "get":
		if len(args) != 1 {
			return errors.New("get needs exactly one path")
		}
		resp, err := svc.Get(ctx, args[0], true)
		if err != nil {
			return err
		}
		_, err = c.out.Write(append(resp.Body, '\n'))
		return err
	case "logout":
		return svc.Logout(ctx)
	case "watch":
		return c.watch(ctx, svc)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) login(ctx context.Context, svc *gosession.SessionSvc, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	id := fs.String("id", "", "phone number, username or email")
	secret := fs.String("secret", "", "password")
	role := fs.String("role", "USER", "USER, BAKERY or ADMIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *secret == "" {
		return errors.New("login needs -id and -secret")
	}

	if _, err := svc.Login(ctx, dto.LoginRequest{Identifier: *id, Secret: *secret, Role: *role}); err != nil {
		return err
	}
	return c.printJSON(svc.State())
}

func (c *cli) watch(ctx context.Context, svc *gosession.SessionSvc) error {
	ch, unsub := svc.SessionListener()
	defer unsub()

	if err := c.printJSON(svc.State()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			if err := c.printJSON(n); err != nil {
				return err
			}
			if n.Kind.IsTerminal() {
				return nil
			}
		}
	}
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server", "err", err)
	}
}

// serveFakeAPI runs the in-process issuing API with one registered user.
func (c *cli) serveFakeAPI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fakeapi", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	id := fs.String("id", "", "identifier of the demo user")
	secret := fs.String("secret", "", "secret of the demo user")
	ttl := fs.Duration("ttl", 15*time.Minute, "credential lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *secret == "" {
		return errors.New("fakeapi needs -id and -secret")
	}

	opts := fakeapi.DefaultOptions()
	opts.TokenTTL = *ttl
	api := fakeapi.New(opts)
	if _, err := api.AddUser(*id, *secret, "USER", *id); err != nil {
		return err
	}

	srv := &http.Server{Addr: *addr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	c.logger.Info("fake API listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/concord/internal/auth"
	"github.com/mistakeknot/concord/internal/config"
	"github.com/mistakeknot/concord/internal/httpapi"
	"github.com/mistakeknot/concord/internal/notify"
	"github.com/mistakeknot/concord/internal/server"
	"github.com/mistakeknot/concord/internal/storage/sqlite"
	"github.com/mistakeknot/concord/internal/ws"
)

var rootCmd = &cobra.Command{
	Use:   "concord",
	Short: "Concord coordination server",
	Long: `Concord is the coordination core for multi-agent work: a task
claim/assign protocol, time-boxed edit locks, an append-only event log
with per-actor chains, and status-change notifications over websockets.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initKeysCmd())
	rootCmd.AddCommand(tokenCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the coordination server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			store, err := sqlite.New(cfg.DBPath, sqlite.WithLockDuration(cfg.LockDuration()))
			if err != nil {
				return fmt.Errorf("store init: %w", err)
			}
			defer store.Close()
			resilient := sqlite.NewResilient(store)

			keysFile := cfg.Auth.KeysFile
			if keysFile == "" {
				keysFile = auth.ResolveKeysPath()
			}
			ring, err := auth.LoadKeyring(keysFile)
			if err != nil {
				return fmt.Errorf("auth init: %w", err)
			}

			hub := ws.NewHub()
			svc := httpapi.NewService(resilient).
				WithNotifier(notify.New(resilient, hub)).
				WithMaxPageLimit(cfg.MaxPageLimit)
			router := httpapi.NewRouter(svc, hub.Handler(), auth.Middleware(ring, cfg.Auth.JWTSecret))

			srv, err := server.New(server.Config{
				Addr:       cfg.ListenAddr,
				SocketPath: cfg.SocketPath,
				Handler:    router,
			})
			if err != nil {
				return fmt.Errorf("server init: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Printf("shutdown: %v", err)
				}
			}()

			log.Printf("concord listening on %s", cfg.ListenAddr)
			if cfg.SocketPath != "" {
				log.Printf("concord socket at %s", cfg.SocketPath)
			}
			return srv.Start()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func initKeysCmd() *cobra.Command {
	var keysFile, org string
	cmd := &cobra.Command{
		Use:   "init-keys",
		Short: "Bootstrap a development API key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keysFile == "" {
				keysFile = auth.ResolveKeysPath()
			}
			res, err := auth.BootstrapDevKey(keysFile, org)
			if err != nil {
				return err
			}
			if !res.Created {
				fmt.Printf("keys file %s already exists, leaving it alone\n", res.KeysFile)
				return nil
			}
			fmt.Printf("wrote %s\n", res.KeysFile)
			fmt.Printf("org:   %s\n", res.OrgID)
			fmt.Printf("actor: %s\n", res.Actor)
			fmt.Printf("key:   %s\n", res.Key)
			return nil
		},
	}
	cmd.Flags().StringVar(&keysFile, "keys-file", "", "path to keys file")
	cmd.Flags().StringVar(&org, "org", "", "organization id (defaults to dev)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var secret, actor, org, email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("CONCORD_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("a signing secret is required (--secret or CONCORD_JWT_SECRET)")
			}
			if actor == "" {
				return fmt.Errorf("--actor is required")
			}
			tok, err := auth.MintToken(secret, actor, org, email, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret")
	cmd.Flags().StringVar(&actor, "actor", "", "actor id for the token subject")
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

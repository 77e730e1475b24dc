// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/leafscan/internal/connectivity"
	"github.com/pdiddy/leafscan/internal/reconcile"
	"github.com/pdiddy/leafscan/internal/secrets"
)

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending scans if the history endpoint is reachable",
	Long: `Sync probes the history endpoint once. When it is reachable and a user
is signed in, anonymous scans are claimed for that user and every pending
scan is pushed, oldest first. Scans that fail stay pending.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := appConfig()

	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	printReport(syncOnce(ctx, cfg.Sync, db))
	return nil
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Push pending scans whenever connectivity is restored",
	Long: `Watch probes the history endpoint every sync.poll_interval and hands
each online/offline transition to the reconciliation controller. It runs
until interrupted.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := appConfig()

	if !session.Authenticated() {
		return fmt.Errorf("not signed in: run leafscan login first")
	}

	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	ctrl := reconcile.New(db, newClient(cfg.Sync, db), session.UserID, log.WithField("component", "reconcile"))
	prober := connectivity.Prober{URL: probeURL(cfg.Sync)}
	poller := connectivity.NewPoller(prober.Probe, cfg.Sync.PollInterval, log.WithField("component", "connectivity"))

	fmt.Printf("Watching %s every %s (Ctrl-C to stop)\n", prober.URL, cfg.Sync.PollInterval)
	ctrl.Run(ctx, poller.Watch(ctx), printReport)
	return nil
}

// --- login / logout ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store session credentials and claim anonymous scans",
	Long: `Login writes the user id and bearer token to the secrets directory.
Scans recorded anonymously are claimed for the user and pushed right away
when the history endpoint is reachable.`,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, _ := cmd.Flags().GetString("user")
	token, _ := cmd.Flags().GetString("token")
	if user == "" {
		return fmt.Errorf("--user is required")
	}

	session = secrets.Session{UserID: user, Token: token}
	if err := secrets.SaveSession(secretsDir(), session); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", user)

	cfg := appConfig()
	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	ctrl := reconcile.New(db, newClient(cfg.Sync, db), "", log.WithField("component", "reconcile"))
	ctrl.HandleConnectivity(ctx, connectivity.Prober{URL: probeURL(cfg.Sync)}.Probe(ctx))
	if r := ctrl.Login(ctx, user); r.Triggered {
		printReport(r)
	}
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove session credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := secrets.SaveSession(secretsDir(), secrets.Session{}); err != nil {
			return err
		}
		session = secrets.Session{}
		fmt.Println("Signed out; new scans are recorded anonymously")
		return nil
	},
}

func printReport(r reconcile.Report) {
	if !r.Triggered {
		return
	}
	if r.Err != nil {
		// Reconciliation failures are retried on the next transition.
		fmt.Println("Sync did not complete; pending scans will be retried")
		return
	}
	fmt.Printf("Claimed %d, pushed %d, pending %d\n", r.Claimed, r.Synced, r.Failed)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("base-url", "", "history API base URL")
	viper.BindPFlag("sync.base_url", flags.Lookup("base-url"))

	loginCmd.Flags().String("user", "", "user id")
	loginCmd.Flags().String("token", "", "bearer token for the history API")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

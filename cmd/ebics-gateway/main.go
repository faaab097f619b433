// Command ebics-gateway manages bank connections, their certificates and
// statement downloads from the command line.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/config"
	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/gateway"
	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/storage"
	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/storage/mongodb"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics"
)

func main() {
	app := &cli.App{
		Name:  "ebics-gateway",
		Usage: "EBICS bank connectivity and statement downloads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "optional .env file loaded before reading the config",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(cCtx *cli.Context) error {
			if err := godotenv.Load(cCtx.String("env-file")); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("loading env file: %w", err)
			}

			level := slog.LevelInfo
			if cCtx.Bool("verbose") {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			return nil
		},
		Commands: []*cli.Command{
			connectionCommand,
			keysCommand,
			statementsCommand,
		},
		UseShortOptionHandling: true,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var connectionCommand = &cli.Command{
	Name:  "connection",
	Usage: "manage bank connections",
	Subcommands: []*cli.Command{
		{
			Name:      "add",
			Usage:     "register a new bank connection",
			ArgsUsage: "",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "bank-name", Required: true},
				&cli.StringFlag{Name: "host-id", Required: true},
				&cli.StringFlag{Name: "partner-id", Required: true},
				&cli.StringFlag{Name: "user-id", Required: true},
				&cli.StringFlag{Name: "bank-url", Required: true},
			},
			Action: withService(func(ctx context.Context, cCtx *cli.Context, svc *gateway.Service, store storage.Store) error {
				record := &storage.ConnectionRecord{
					BankName:  cCtx.String("bank-name"),
					HostID:    cCtx.String("host-id"),
					PartnerID: cCtx.String("partner-id"),
					UserID:    cCtx.String("user-id"),
					BankURL:   cCtx.String("bank-url"),
					Version:   ebics.ProtocolVersion,
				}
				if err := store.CreateConnection(ctx, record); err != nil {
					return err
				}
				fmt.Printf("connection %s registered for host %s\n", record.ID, record.HostID)
				return nil
			}),
		},
		{
			Name:  "list",
			Usage: "list registered bank connections",
			Action: withService(func(ctx context.Context, cCtx *cli.Context, svc *gateway.Service, store storage.Store) error {
				conns, err := store.ListConnections(ctx)
				if err != nil {
					return err
				}
				for _, conn := range conns {
					last := "never"
					if conn.LastConnected != nil {
						last = conn.LastConnected.Format(time.RFC3339)
					}
					fmt.Printf("%s  %-20s %-10s %-8s last connected: %s\n",
						conn.ID, conn.BankName, conn.HostID, conn.Status, last)
				}
				return nil
			}),
		},
		{
			Name:      "test",
			Usage:     "run an HKD connectivity test",
			ArgsUsage: "<connection-id>",
			Action: withService(func(ctx context.Context, cCtx *cli.Context, svc *gateway.Service, store storage.Store) error {
				id := cCtx.Args().First()
				if id == "" {
					return fmt.Errorf("connection ID is required")
				}
				ok, err := svc.TestConnection(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("bank rejected the connection test")
				}
				fmt.Println("connection test successful")
				return nil
			}),
		},
	},
}

var keysCommand = &cli.Command{
	Name:  "keys",
	Usage: "manage subscriber certificates",
	Subcommands: []*cli.Command{
		{
			Name:      "generate",
			Usage:     "generate and store certificates for a connection",
			ArgsUsage: "<connection-id>",
			Action: withService(func(ctx context.Context, cCtx *cli.Context, svc *gateway.Service, store storage.Store) error {
				id := cCtx.Args().First()
				if id == "" {
					return fmt.Errorf("connection ID is required")
				}
				infos, err := svc.SetupCertificates(ctx, id)
				if err != nil {
					return err
				}
				for _, info := range infos {
					fmt.Printf("%s\n  fingerprint: %s\n  valid until: %s\n",
						info.Subject, info.Fingerprint, info.NotAfter.Format(time.RFC3339))
				}
				return nil
			}),
		},
		{
			Name:  "expiring",
			Usage: "list active certificates expiring within a window",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "within",
					Usage: "expiry window",
					Value: 30 * 24 * time.Hour,
				},
			},
			Action: withService(func(ctx context.Context, cCtx *cli.Context, svc *gateway.Service, store storage.Store) error {
				records, err := svc.ExpiringCertificates(ctx, cCtx.Duration("within"))
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("no certificates expiring in the window")
					return nil
				}
				for _, record := range records {
					fmt.Printf("%s  %s/%s  expires %s  %s\n",
						record.ConnectionID, record.Type, record.Usage,
						record.NotAfter.Format("2006-01-02"), record.Fingerprint)
				}
				return nil
			}),
		},
		{
			Name:      "deactivate",
			Usage:     "soft-delete a certificate",
			ArgsUsage: "<certificate-id>",
			Action: withService(func(ctx context.Context, cCtx *cli.Context, svc *gateway.Service, store storage.Store) error {
				id := cCtx.Args().First()
				if id == "" {
					return fmt.Errorf("certificate ID is required")
				}
				return svc.DeactivateCertificate(ctx, id)
			}),
		},
	},
}

var statementsCommand = &cli.Command{
	Name:  "statements",
	Usage: "download and print bank statements",
	Subcommands: []*cli.Command{
		{
			Name:      "download",
			Usage:     "download statements for a date range",
			ArgsUsage: "<connection-id>",
			Flags: []cli.Flag{
				&cli.TimestampFlag{
					Name:   "from",
					Usage:  "range start (yyyy-mm-dd)",
					Layout: "2006-01-02",
				},
				&cli.TimestampFlag{
					Name:   "to",
					Usage:  "range end (yyyy-mm-dd)",
					Layout: "2006-01-02",
				},
			},
			Action: withService(func(ctx context.Context, cCtx *cli.Context, svc *gateway.Service, store storage.Store) error {
				id := cCtx.Args().First()
				if id == "" {
					return fmt.Errorf("connection ID is required")
				}

				to := time.Now()
				if t := cCtx.Timestamp("to"); t != nil {
					to = *t
				}
				from := to.AddDate(0, 0, -30)
				if t := cCtx.Timestamp("from"); t != nil {
					from = *t
				}

				records, err := svc.DownloadStatements(ctx, id, from, to)
				if err != nil {
					return err
				}
				for _, record := range records {
					fmt.Printf("%-28s %12s %s  %s  %s\n",
						record.TransactionID, record.Amount, record.Currency,
						record.ValueDate.Format("2006-01-02"), record.RemittanceInfo)
				}
				fmt.Printf("%d transactions\n", len(records))
				return nil
			}),
		},
	},
}

// withService loads configuration, connects storage and hands a ready
// gateway service to the command action.
func withService(action func(ctx context.Context, cCtx *cli.Context, svc *gateway.Service, store storage.Store) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		cfg, err := config.Load(cCtx.String("config"))
		if err != nil {
			return err
		}

		ctx := cCtx.Context
		store, err := mongodb.NewStore(ctx, &mongodb.Config{
			URI:      cfg.Storage.MongoDB.URI,
			Database: cfg.Storage.MongoDB.Database,
		})
		if err != nil {
			return fmt.Errorf("connecting storage: %w", err)
		}
		defer store.Close(ctx)

		svc, err := gateway.NewService(cfg, store, slog.Default())
		if err != nil {
			return err
		}

		return action(ctx, cCtx, svc, store)
	}
}

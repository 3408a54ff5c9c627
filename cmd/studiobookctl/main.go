package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/studiobook/studiobook/internal/availability"
	"github.com/studiobook/studiobook/internal/config"
	"github.com/studiobook/studiobook/internal/db"
	"github.com/studiobook/studiobook/internal/provider"
	"github.com/studiobook/studiobook/internal/reconcile"
)

func main() {
	log.SetFlags(log.LstdFlags)

	app := &cli.App{
		Name:  "studiobookctl",
		Usage: "Administer the StudioBook booking service.",
		Commands: []*cli.Command{
			authCommand(),
			syncCommand(),
			availabilityCommand(),
			logsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// authCommand runs the interactive Google OAuth flow and saves the token
// the service reads at startup.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Google Calendar and save a token file.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			b, err := os.ReadFile(cfg.Provider.GoogleCredentialsFile)
			if err != nil {
				return fmt.Errorf("failed to read credentials file: %w", err)
			}
			oauthCfg, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
			if err != nil {
				return fmt.Errorf("failed to parse credentials: %w", err)
			}

			authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code:\n%v\n", authURL)

			fmt.Print("Enter authorization code: ")
			reader := bufio.NewReader(os.Stdin)
			code, _ := reader.ReadString('\n')

			token, err := oauthCfg.Exchange(c.Context, strings.TrimSpace(code))
			if err != nil {
				return fmt.Errorf("failed to exchange authorization code: %w", err)
			}

			f, err := os.OpenFile(cfg.Provider.GoogleTokenFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("failed to create token file: %w", err)
			}
			defer f.Close()
			if err := json.NewEncoder(f).Encode(token); err != nil {
				return fmt.Errorf("failed to write token: %w", err)
			}

			fmt.Printf("Token saved to %s\n", cfg.Provider.GoogleTokenFile)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one reconciliation cycle and print the result.",
		Action: func(c *cli.Context) error {
			cfg, database, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			prov, err := newProvider(c.Context, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize provider: %w", err)
			}

			engine := reconcile.New(
				database,
				prov,
				cfg.Provider.CalendarID(),
				cfg.Booking.Timezone,
				cfg.Sync.WindowPastDays,
				cfg.Sync.WindowFutureDays,
			)

			result, err := engine.Sync(c.Context)
			if err != nil {
				return err
			}

			fmt.Printf("Imported: %d\nExported: %d\nUpdated:  %d\nDuration: %v\n",
				result.Imported, result.Exported, result.Updated, result.Duration.Round(time.Millisecond))
			for _, e := range result.Errors {
				fmt.Printf("Error: %s: %s\n", e.EventID, e.Message)
			}
			if len(result.Errors) > 0 {
				return cli.Exit(fmt.Sprintf("%d event(s) failed", len(result.Errors)), 1)
			}
			return nil
		},
	}
}

func availabilityCommand() *cli.Command {
	return &cli.Command{
		Name:  "availability",
		Usage: "Print bookable slots for a date.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Required: true, Usage: "Date in YYYY-MM-DD."},
			&cli.IntFlag{Name: "duration", Value: 60, Usage: "Booking duration in minutes."},
		},
		Action: func(c *cli.Context) error {
			cfg, database, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			date, err := time.ParseInLocation("2006-01-02", c.String("date"), cfg.Booking.Timezone)
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}

			events, err := database.ListActiveEventsBetween(date.UTC(), date.AddDate(0, 0, 1).UTC())
			if err != nil {
				return err
			}

			result := availability.Slots(events, date, c.Int("duration"), availability.Rules{
				Timezone:      cfg.Booking.Timezone,
				OpenMinutes:   cfg.Booking.OpenMinutes,
				CloseMinutes:  cfg.Booking.CloseMinutes,
				BufferMinutes: cfg.Booking.BufferMinutes,
				GridMinutes:   cfg.Booking.SlotGridMinutes,
			})

			if !result.Available {
				fmt.Printf("%s: no availability (%s)\n", c.String("date"), result.Reason)
				return nil
			}
			for _, slot := range result.Slots {
				fmt.Println(slot.In(cfg.Booking.Timezone).Format("15:04"))
			}
			return nil
		},
	}
}

func logsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Print recent sync cycles.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "Number of entries."},
		},
		Action: func(c *cli.Context) error {
			_, database, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			logs, err := database.GetSyncLogs(c.Int("limit"))
			if err != nil {
				return err
			}
			for _, entry := range logs {
				fmt.Printf("%s  %-7s  imported=%d exported=%d updated=%d errors=%d  %s\n",
					entry.StartedAt.Format(time.RFC3339), entry.Status,
					entry.Imported, entry.Exported, entry.Updated, entry.ErrorCount,
					entry.Message)
			}
			return nil
		},
	}
}

func openDatabase() (*config.Config, *db.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, database, nil
}

func newProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider.Type {
	case config.ProviderGoogle:
		return provider.NewGoogle(
			ctx,
			cfg.Provider.GoogleCalendarID,
			cfg.Provider.GoogleCredentialsFile,
			cfg.Provider.GoogleTokenFile,
		)
	case config.ProviderCalDAV:
		return provider.NewCalDAV(
			cfg.Provider.CalDAVURL,
			cfg.Provider.CalDAVUsername,
			cfg.Provider.CalDAVPassword,
			cfg.Provider.CalDAVCalendarPath,
		)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}

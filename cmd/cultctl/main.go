// Command cultctl is the operator CLI: it runs migrations and inspects initiation and live state
// directly in Postgres, or triggers a live check through the bot's admin API.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/onnwee/cultbot/config"
	"github.com/onnwee/cultbot/db"
	"github.com/onnwee/cultbot/initiation"
	"github.com/onnwee/cultbot/livestream"
)

func main() {
	_ = godotenv.Load()
	app := &cli.App{
		Name:  "cultctl",
		Usage: "operate the cultbot database and admin API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-dsn", Usage: "postgres DSN", EnvVars: []string{"DB_DSN"}},
			&cli.StringFlag{Name: "api", Usage: "bot HTTP base URL", Value: "http://localhost:8080", EnvVars: []string{"CULTBOT_API"}},
			&cli.StringFlag{Name: "admin-token", Usage: "admin bearer token", EnvVars: []string{"ADMIN_TOKEN"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "database migrations",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply all migrations", Action: runMigrateUp},
					{Name: "down", Usage: "roll back one migration", Action: runMigrateDown},
					{Name: "version", Usage: "print the schema version", Action: runMigrateVersion},
				},
			},
			{
				Name:  "sessions",
				Usage: "initiation sessions",
				Subcommands: []*cli.Command{
					{
						Name:   "pending",
						Usage:  "list pending sessions older than --older-than",
						Flags:  []cli.Flag{&cli.DurationFlag{Name: "older-than", Value: 0}},
						Action: runSessionsPending,
					},
				},
			},
			{
				Name:  "live",
				Usage: "live-stream announcements",
				Subcommands: []*cli.Command{
					{Name: "status", Usage: "print stored live status per platform", Action: runLiveStatus},
					{
						Name:   "check",
						Usage:  "trigger a manual live check through the admin API",
						Flags:  []cli.Flag{&cli.StringFlag{Name: "platform", Usage: "youtube or twitch; empty checks all"}},
						Action: runLiveCheck,
					},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openDB(cctx *cli.Context) (*sql.DB, error) {
	dsn := cctx.String("db-dsn")
	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		dsn = cfg.DBDsn
	}
	ctx, cancel := context.WithTimeout(cctx.Context, 15*time.Second)
	defer cancel()
	return db.Connect(ctx, dsn)
}

func runMigrateUp(cctx *cli.Context) error {
	database, err := openDB(cctx)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.Apply(database); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

func runMigrateDown(cctx *cli.Context) error {
	database, err := openDB(cctx)
	if err != nil {
		return err
	}
	defer database.Close()
	return db.MigrateDown(database)
}

func runMigrateVersion(cctx *cli.Context) error {
	database, err := openDB(cctx)
	if err != nil {
		return err
	}
	defer database.Close()
	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	fmt.Printf("version=%d dirty=%t\n", v, dirty)
	return nil
}

func runSessionsPending(cctx *cli.Context) error {
	database, err := openDB(cctx)
	if err != nil {
		return err
	}
	defer database.Close()
	m := initiation.NewMachine(&initiation.PGStore{DB: database})
	sessions, err := m.GetExpiredSessions(cctx.Context, cctx.Duration("older-than"))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCOMMUNITY\tUSER\tJOINED\tAGE")
	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.CommunityID, s.UserID, s.JoinedAt.Format(time.RFC3339), now.Sub(s.JoinedAt).Round(time.Minute))
	}
	return w.Flush()
}

func runLiveStatus(cctx *cli.Context) error {
	database, err := openDB(cctx)
	if err != nil {
		return err
	}
	defer database.Close()
	store := &livestream.PGStore{DB: database}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tLIVE\tVIDEO\tANNOUNCED\tLAST CHECK")
	for _, p := range []livestream.Platform{livestream.PlatformYouTube, livestream.PlatformTwitch} {
		st, err := store.Get(cctx.Context, p)
		if err != nil {
			return err
		}
		last := "-"
		if st.LastCheckedAt != nil {
			last = st.LastCheckedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%t\t%s\n", p, st.IsLive, st.CurrentVideoID, st.AnnouncementSent, last)
	}
	return w.Flush()
}

func runLiveCheck(cctx *cli.Context) error {
	url := strings.TrimRight(cctx.String("api"), "/") + "/admin/live/check"
	if p := cctx.String("platform"); p != "" {
		url += "?platform=" + p
	}
	ctx, cancel := context.WithTimeout(cctx.Context, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if tok := cctx.String("admin-token"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin api %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

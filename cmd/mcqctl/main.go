// Command mcqctl runs maintenance jobs against the MCQ bank: imports and
// exports, data repair, file transforms and case conversion.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/neuro-mcq/backend/internal/cache"
	"github.com/neuro-mcq/backend/internal/config"
	"github.com/neuro-mcq/backend/internal/database"
	"github.com/spf13/cobra"
)

// app holds what subcommands share once the root command has run.
type app struct {
	cfg config.Config
	db  *sql.DB
}

func (a *app) database() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := database.Connect(a.cfg.DB)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) cache(ctx context.Context) cache.Cache {
	if a.cfg.RedisURL == "" {
		return cache.NewMemoryCache()
	}
	rc, err := cache.NewRedisCache(ctx, a.cfg.RedisURL, "neuro-mcq:")
	if err != nil {
		log.Printf("WARN: redis unavailable, using memory cache: %v", err)
		return cache.NewMemoryCache()
	}
	return rc
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mcqctl",
		Short:         "Maintenance tools for the neurology MCQ bank",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				log.Printf("WARN: reading .env: %v", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		newImportCmd(a),
		newExportCmd(a),
		newDedupeCmd(a),
		newFixAnswersCmd(a),
		newFixImagesCmd(a),
		newBackfillCmd(a),
		newPlaceholdersCmd(a),
		newNormalizeCmd(),
		newFlattenCmd(),
		newChunkCmd(),
		newConvertCmd(a),
		newCacheClearCmd(a),
		newMigrateCmd(a),
		newStaffCmd(a),
	)
	return root
}

func printJSON(v interface{}) error {
	return writeJSONFile(os.Stdout, v)
}

func writeJSONFile(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	a := &app{}

	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

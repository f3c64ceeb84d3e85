package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"retailgate.org/internal/branches"
	"retailgate.org/internal/migrate"
	"retailgate.org/internal/obs"
	"retailgate.org/internal/store/pg"
)

func main() {
	var (
		dsn            = flag.String("dsn", os.Getenv("RETAILGATE_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "directory of SQL migrations (embedded set when empty)")
		seedsPath      = flag.String("seeds", "", "directory of SQL seeds (embedded set when empty)")
		branchesFile   = flag.String("branches", os.Getenv("RETAILGATE_BRANCHES_FILE"), "YAML branch directory for import-branches")
		timeout        = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	logger := obs.Logger()
	if *dsn == "" {
		logger.Fatal("missing DSN: provide via --dsn or RETAILGATE_PG_DSN")
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up|down|seed|status|pending|import-branches")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	mgr := migrate.NewManager(db, dirFS(*migrationsPath), dirFS(*seedsPath), migrate.WithLogger(logger))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status", "pending":
		var names []string
		if cmd == "status" {
			names, err = mgr.Status(ctx)
		} else {
			names, err = mgr.Pending(ctx)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	case "import-branches":
		err = importBranches(ctx, db, *branchesFile, logger)
	default:
		logger.Fatal("unknown command", zap.String("command", cmd))
	}
	if err != nil {
		logger.Fatal("migrate failed", zap.String("command", cmd), zap.Error(err))
	}
}

func dirFS(path string) fs.FS {
	if path == "" {
		return nil
	}
	return os.DirFS(path)
}

// importBranches upserts every branch and grant of a YAML directory.
func importBranches(ctx context.Context, db *sql.DB, path string, logger *zap.Logger) error {
	if path == "" {
		return errors.New("--branches is required")
	}
	dir, err := branches.LoadFile(path)
	if err != nil {
		return err
	}
	list, err := dir.List(ctx)
	if err != nil {
		return err
	}
	store := pg.New(db)
	for _, b := range list {
		if err := store.PutBranch(ctx, b); err != nil {
			return fmt.Errorf("branch %s: %w", b.ID, err)
		}
	}
	grants := dir.GrantList()
	for _, g := range grants {
		if err := store.Grant(ctx, g.UserID, g.BranchID, g.Permissions); err != nil {
			return fmt.Errorf("grant %s@%s: %w", g.UserID, g.BranchID, err)
		}
	}
	logger.Info("branch directory imported", zap.Int("branches", len(list)), zap.Int("grants", len(grants)))
	return nil
}

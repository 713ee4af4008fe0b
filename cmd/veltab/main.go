// Package main implements the veltab binary: it assembles a virtual
// database from a YAML config and executes SQL against it, either one-shot
// via -e or as a line-oriented shell on stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/veltab/veltab/internal/app"
	"github.com/veltab/veltab/internal/config"
	"github.com/veltab/veltab/pkg/virtual"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		execStmt    string
		jsonOutput  bool
		showStats   bool
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "veltab.yaml", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&execStmt, "e", "", "Execute one statement and exit")
	flag.BoolVar(&jsonOutput, "json", false, "Emit rows as JSON instead of a table")
	flag.BoolVar(&showStats, "stats", false, "Print query statistics on exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Veltab - SQL over pluggable table backends\n\n")
		fmt.Fprintf(os.Stderr, "Usage: veltab [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  veltab -config veltab.yaml -e 'SELECT * FROM users WHERE age > 30'\n")
		fmt.Fprintf(os.Stderr, "  veltab -config veltab.yaml -json -e 'SELECT COUNT(*) FROM events'\n")
		fmt.Fprintf(os.Stderr, "  veltab -config veltab.yaml          (interactive shell)\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  VELTAB_DEFAULT_COLLATION   binary, nocase, or a BCP-47 tag\n")
		fmt.Fprintf(os.Stderr, "  VELTAB_STORAGE_TYPE        Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  VELTAB_S3_BUCKET           S3 bucket for jsonl tables\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("veltab version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// AWS credentials and overrides may live in a .env next to the config.
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	config.LoadFromEnv(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	defer application.Close()

	ctx := context.Background()
	if err := application.Open(ctx); err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db := application.Database()

	if execStmt != "" {
		if err := run(ctx, db, execStmt, jsonOutput); err != nil {
			log.Fatalf("%v", err)
		}
	} else {
		shell(ctx, db, jsonOutput)
	}

	if showStats {
		printStats(db)
	}
}

// shell reads statements line by line from stdin until EOF or "exit".
func shell(ctx context.Context, db *virtual.Database, jsonOutput bool) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("veltab> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "--"):
		case line == "exit" || line == "quit":
			return
		default:
			if err := run(ctx, db, line, jsonOutput); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
		fmt.Print("veltab> ")
	}
}

// run executes one statement and prints its result.
func run(ctx context.Context, db *virtual.Database, stmt string, jsonOutput bool) error {
	verb := strings.ToUpper(firstWord(stmt))
	if verb == "INSERT" || verb == "UPDATE" || verb == "DELETE" {
		res, err := db.Exec(ctx, stmt)
		if err != nil {
			return err
		}
		if res.LastInsertID != nil {
			fmt.Printf("OK, %d row(s) affected, id %v\n", res.RowsAffected, res.LastInsertID)
		} else {
			fmt.Printf("OK, %d row(s) affected\n", res.RowsAffected)
		}
		return nil
	}

	res, err := db.Query(ctx, stmt)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	return printTable(res)
}

func printTable(res *virtual.Result) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("(%d row(s))\n", len(res.Rows))
	return nil
}

func printJSON(res *virtual.Result) error {
	enc := json.NewEncoder(os.Stdout)
	for _, row := range res.Rows {
		doc := make(map[string]interface{}, len(res.Columns))
		for i, col := range res.Columns {
			doc[col] = row[i]
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return nil
}

func printStats(db *virtual.Database) {
	snap := db.Stats()
	log.Printf("Queries: %d  Mutations: %d", snap.Queries, snap.Mutations)
	log.Printf("Order hints: %d trusted, %d re-sorted", snap.OrderHintHits, snap.OrderHintMisses)
	for _, col := range snap.TopPredicates {
		log.Printf("  %-20s %d predicate(s)", col.Column, col.Frequency)
	}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

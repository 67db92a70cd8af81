// Command ehrql is the operator-facing entrypoint: it resolves
// connection and backend configuration from the environment the same
// way sqldef's per-engine commands parse flags and dial a database,
// then drives the dataset-compilation and execution pipeline the
// library packages (schema, builder, sqlgen, reader, colspec,
// fileformat) implement.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/opensafely-core/ehrql-go/config"
	"github.com/opensafely-core/ehrql-go/dialect"
	"github.com/opensafely-core/ehrql-go/dialect/mssql"
	"github.com/opensafely-core/ehrql-go/dialect/sqlite"
	"github.com/opensafely-core/ehrql-go/internal/telemetry"
	"github.com/opensafely-core/ehrql-go/schema"
)

var version string

type options struct {
	BackendDef string `long:"backend-def" description:"YAML file describing the table-schema registry" value-name:"path"`
	Version    bool   `long:"version" description:"Show this version"`

	TestConnection  struct{} `command:"test-connection" description:"Open DATABASE_URL and confirm the backend is reachable"`
	DumpSchema      struct{} `command:"dump-schema" description:"Print the tables and columns in --backend-def"`
	DumpDatasetSQL  struct{} `command:"dump-dataset-sql" description:"Print the generated SQL for the built-in sample dataset"`
	GenerateDataset struct {
		Output string `long:"output" description:"CSV file to write (default: stdout)" value-name:"path"`
	} `command:"generate-dataset" description:"Run the built-in sample dataset against DATABASE_URL and write CSV"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[options] <command>"
	args, err := parser.Parse()
	if err != nil {
		os.Exit(1)
	}
	if opts.Version {
		fmt.Println(version)
		return
	}
	_ = args

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := telemetry.New(telemetry.FromEnv())
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	switch parser.Active.Name {
	case "test-connection":
		runTestConnection(ctx, cfg)
	case "dump-schema":
		runDumpSchema(opts.BackendDef)
	case "dump-dataset-sql":
		runDumpDatasetSQL(cfg, opts.BackendDef)
	case "generate-dataset":
		runGenerateDataset(ctx, cfg, opts.BackendDef, opts.GenerateDataset.Output)
	default:
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}
}

// resolveDialect picks the dialect.Dialect for cfg.QueryEngine,
// defaulting to sqlite for local/CI use the way sqldef's own
// sqlite3def binary needs no driver selection flag at all.
func resolveDialect(cfg config.Config) (dialect.Dialect, error) {
	switch cfg.QueryEngine {
	case "", "sqlite":
		return sqlite.New(), nil
	case "mssql":
		return mssql.New(), nil
	default:
		return nil, fmt.Errorf("ehrql: unknown OPENSAFELY_QUERY_ENGINE %q (drivers linked into this build: %v)",
			cfg.QueryEngine, config.RegisteredDrivers())
	}
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, dialect.Dialect, error) {
	d, err := resolveDialect(cfg)
	if err != nil {
		return nil, nil, err
	}
	dsn := cfg.DatabaseURL
	if dsn == "" {
		return nil, nil, fmt.Errorf("ehrql: DATABASE_URL is not set")
	}
	db, err := d.Open(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("ehrql: connecting via %s: %w", d.Name(), err)
	}
	return db, d, nil
}

func runTestConnection(ctx context.Context, cfg config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, _, err := openDB(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	fmt.Println("SUCCESS")
}

func runDumpSchema(backendDef string) {
	reg := loadRegistry(backendDef)
	for _, name := range reg.Names() {
		table, err := reg.Table(name)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s (patient_domain=%v)\n", table.Name, table.PatientDomain)
		for _, col := range table.Columns {
			fmt.Printf("  %s %s\n", col.Name, col.Type)
		}
	}
}

func runDumpDatasetSQL(cfg config.Config, backendDef string) {
	reg := loadRegistry(backendDef)
	d, err := resolveDialect(cfg)
	if err != nil {
		log.Fatal(err)
	}
	query, err := compileSampleDataset(reg, d)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(query)
}

func runGenerateDataset(ctx context.Context, cfg config.Config, backendDef, output string) {
	reg := loadRegistry(backendDef)
	db, d, err := openDB(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := runSampleDataset(ctx, db, d, reg, output); err != nil {
		log.Fatal(err)
	}
}

// openOutput returns output's destination writer (stdout if output is
// empty) and a close func the caller must always invoke.
func openOutput(output string) (io.Writer, func() error, error) {
	if output == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, fmt.Errorf("ehrql: creating %s: %w", output, err)
	}
	return f, f.Close, nil
}

func loadRegistry(backendDef string) *schema.Registry {
	if backendDef == "" {
		log.Fatal("ehrql: --backend-def is required")
	}
	data, err := os.ReadFile(backendDef)
	if err != nil {
		log.Fatalf("ehrql: reading %s: %v", backendDef, err)
	}
	reg, err := config.LoadBackendDefinition(data)
	if err != nil {
		log.Fatal(err)
	}
	return reg
}

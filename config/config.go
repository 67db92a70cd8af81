// Package config loads ehrql-go's runtime configuration from the
// environment, the same variables sqldef's cli.go read directly off
// os.Getenv, plus an optional YAML backend-definition file describing
// the table schema registry a dataset compiles against.
package config

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
)

// Config is the resolved runtime configuration for one ehrql-go run.
type Config struct {
	DatabaseURL      string
	Backend          string // OPENSAFELY_BACKEND
	QueryEngine      string // OPENSAFELY_QUERY_ENGINE: "mssql" or "sqlite"
	TempDatabaseName string
	IsolateUserCode  bool
	LogLevel         string
	LogSQL           bool
}

// FromEnv reads DATABASE_URL, OPENSAFELY_BACKEND,
// OPENSAFELY_QUERY_ENGINE, TEMP_DATABASE_NAME,
// EHRQL_ISOLATE_USER_CODE, LOG_LEVEL and LOG_SQL. DATABASE_URL is
// returned as found; FromEnv does not prompt for a missing password
// (PromptPassword is a separate helper that nothing here calls).
func FromEnv() (Config, error) {
	isolate, err := parseBool(os.Getenv("EHRQL_ISOLATE_USER_CODE"), false)
	if err != nil {
		return Config{}, fmt.Errorf("config: EHRQL_ISOLATE_USER_CODE: %w", err)
	}
	logSQL, err := parseBool(os.Getenv("LOG_SQL"), false)
	if err != nil {
		return Config{}, fmt.Errorf("config: LOG_SQL: %w", err)
	}
	return Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Backend:          os.Getenv("OPENSAFELY_BACKEND"),
		QueryEngine:      os.Getenv("OPENSAFELY_QUERY_ENGINE"),
		TempDatabaseName: os.Getenv("TEMP_DATABASE_NAME"),
		IsolateUserCode:  isolate,
		LogLevel:         os.Getenv("LOG_LEVEL"),
		LogSQL:           logSQL,
	}, nil
}

// RegisteredDrivers lists the database/sql driver names linked into
// this binary, sorted, including ones no dialect.Dialect implements
// (postgres, mysql). cmd/ehrql only names them in its error for an
// unknown OPENSAFELY_QUERY_ENGINE; it cannot connect through them.
func RegisteredDrivers() []string {
	names := sql.Drivers()
	sort.Strings(names)
	return names
}

func parseBool(s string, def bool) (bool, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}

// PromptPassword reads a password from the terminal without echoing
// it, for a DATABASE_URL supplied without credentials.
func PromptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("config: reading password: %w", err)
	}
	return string(pw), nil
}

// backendDefFile is the YAML shape of a backend table-schema
// definition file: one entry per table, each with its columns and
// whether it is patient domain.
type backendDefFile struct {
	Tables map[string]backendTable `yaml:"tables"`
}

type backendTable struct {
	PatientDomain bool                     `yaml:"patient_domain"`
	Columns       map[string]backendColumn `yaml:"columns"`
}

type backendColumn struct {
	Type       string   `yaml:"type"`
	CodeSystem string   `yaml:"code_system,omitempty"`
	NotNull    bool     `yaml:"not_null,omitempty"`
	Categories []string `yaml:"categories,omitempty"`
}

// LoadBackendDefinition parses a YAML backend definition and returns
// a populated schema.Registry.
func LoadBackendDefinition(data []byte) (*schema.Registry, error) {
	var doc backendDefFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing backend definition: %w", err)
	}
	reg := schema.NewRegistry()
	for tableName, t := range doc.Tables {
		cols := make([]schema.Column, 0, len(t.Columns))
		for colName, c := range t.Columns {
			typ, err := parseColumnType(c.Type, c.CodeSystem)
			if err != nil {
				return nil, fmt.Errorf("config: table %q column %q: %w", tableName, colName, err)
			}
			var constraints []schema.Constraint
			if c.NotNull {
				constraints = append(constraints, schema.Constraint{Kind: schema.NotNull})
			}
			if len(c.Categories) > 0 {
				constraints = append(constraints, schema.Constraint{Kind: schema.Categorical, Categories: c.Categories})
			}
			cols = append(cols, schema.Column{Name: colName, Type: typ, Constraints: constraints})
		}
		reg.Register(schema.TableSchema{Name: tableName, Columns: cols, PatientDomain: t.PatientDomain})
	}
	return reg, nil
}

func parseColumnType(kind, codeSystem string) (types.Type, error) {
	switch strings.ToLower(kind) {
	case "bool":
		return types.Bool(), nil
	case "int":
		return types.Int(), nil
	case "float":
		return types.Float(), nil
	case "str":
		return types.Str(), nil
	case "date":
		return types.Date(), nil
	case "datetime":
		return types.Datetime(), nil
	case "code":
		if codeSystem == "" {
			return types.Type{}, fmt.Errorf("code column requires code_system")
		}
		return types.Code(types.CodeSystem(strings.ToLower(codeSystem))), nil
	default:
		return types.Type{}, fmt.Errorf("unknown column type %q", kind)
	}
}

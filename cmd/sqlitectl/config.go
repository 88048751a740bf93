// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/productsupcom/go-sqlite-async/listener"
	"github.com/productsupcom/go-sqlite-async/sqlitedb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"warn" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// MetricsConfig configures serving of Prometheus metrics.
type MetricsConfig struct {
	Address string `long:"address" env:"ADDRESS" description:"Address at which to serve metrics, eg :9100. Disabled if empty"`
	Path    string `long:"path" env:"PATH" default:"/metrics" description:"Path at which metrics are served"`
}

// DatabaseConfig configures how databases are opened.
type DatabaseConfig struct {
	Name        string        `long:"name" env:"NAME" default:":memory:" description:"Database file name, absolute path, or :memory:"`
	Directory   string        `long:"dir" env:"DIR" description:"Directory against which relative names are resolved. Defaults to the working directory"`
	Key         string        `long:"key" env:"KEY" description:"Encryption key, for engines built with encryption support"`
	CacheSize   int           `long:"cache-size" env:"CACHE_SIZE" default:"16" description:"Number of compiled statements to cache. Negative disables the cache"`
	BusyTimeout time.Duration `long:"busy-timeout" env:"BUSY_TIMEOUT" default:"5s" description:"How long to retry when the file is locked by another process"`
	Extensions  []string      `long:"extension" description:"Path of a loadable extension. May be repeated" no-ini:"true"`
}

var baseCfg = new(struct {
	Log      LogConfig      `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Metrics  MetricsConfig  `group:"Metrics" namespace:"metrics" env-namespace:"METRICS"`
	Database DatabaseConfig `group:"Database" namespace:"db" env-namespace:"DB"`
})

// startup is called by each command prior to its own execution.
func startup() {
	InitLog(baseCfg.Log)
	InitMetrics(baseCfg.Metrics)
}

// InitLog configures the logger.
func InitLog(cfg LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else if cfg.Format == "text" {
		log.SetFormatter(&log.TextFormatter{})
	} else if cfg.Format == "color" {
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	}

	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}
}

// InitMetrics serves metrics in the background, if configured.
func InitMetrics(cfg MetricsConfig) {
	if cfg.Address == "" {
		return
	}
	var mux = http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	go func() {
		var err = http.ListenAndServe(cfg.Address, mux)
		log.WithFields(log.Fields{"err": err, "addr": cfg.Address}).Warn("metrics server stopped")
	}()
}

// Options returns sqlitedb.Options of the configuration.
func (cfg DatabaseConfig) Options() *sqlitedb.Options {
	var opts = &sqlitedb.Options{
		Directory:          cfg.Directory,
		Key:                cfg.Key,
		StatementCacheSize: cfg.CacheSize,
		BusyTimeout:        cfg.BusyTimeout,
	}
	for _, ext := range cfg.Extensions {
		opts.Extensions = append(opts.Extensions, sqlitedb.Extension{LibPath: ext})
	}
	return opts
}

// Open opens the configured database, reporting changes to |hub| if non-nil.
func (cfg DatabaseConfig) Open(hub *listener.Hub) *sqlitedb.Database {
	var opts = cfg.Options()
	if hub != nil {
		opts.EnableChangeListener = true
		opts.Hub = hub
	}
	// The CLI finalizes any Statement it leaves open.
	opts.FinalizeUnusedStatementsBeforeClosing = true

	var db, err = sqlitedb.Open(cfg.Name, opts)
	Must(err, "failed to open database", "name", cfg.Name)
	return db
}

// Must panics if |err| is non-nil, supplying |msg| and |extra| as
// formatter and fields of the generated panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Panic(msg)
}

// MustParseConfig requires that the Parser parse from the combination of an
// optional INI file, configured environment bindings, and explicit flags.
// An INI file matching |configName| is searched for in:
//   - The current working directory.
//   - ~/.config/sqlitectl (under the users's $HOME or %UserProfile% directory).
func MustParseConfig(parser *flags.Parser, configName string) {
	// Allow unknown options while parsing an INI file.
	var origOptions = parser.Options
	parser.Options |= flags.IgnoreUnknown

	var iniParser = flags.NewIniParser(parser)

	var prefixes = []string{
		".",
		filepath.Join(os.Getenv("HOME"), ".config", "sqlitectl"),
		filepath.Join(os.Getenv("UserProfile"), ".config", "sqlitectl"),
	}
	for _, prefix := range prefixes {
		var path = filepath.Join(prefix, configName)

		if err := iniParser.ParseFile(path); err == nil {
			break
		} else if os.IsNotExist(err) {
			// Pass.
		} else {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	// Restore original options for parsing argument flags.
	parser.Options = origOptions
	MustParseArgs(parser)
}

// MustParseArgs requires that Parser be able to ParseArgs without error.
func MustParseArgs(parser *flags.Parser) {
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		var flagErr, ok = err.(*flags.Error)
		if !ok {
			// Command errors were already printed by the parser.
			os.Exit(1)
		}

		switch flagErr.Type {
		case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
			// These error types indicate a problem in the configuration object
			// |parser| was asked to parse (eg, a developer error rather than input error).
			panic(err)

		case flags.ErrCommandRequired:
			// Extend go-flag's "Please specify one command of: ... " output with the full usage.
			os.Stderr.WriteString("\n")
			parser.WriteHelp(os.Stderr)
			os.Exit(1)

		case flags.ErrHelp:
			os.Exit(0)

		default:
			// Other errors are user input errors, and were already printed.
			os.Exit(1)
		}
	}
}

// AddPrintConfigCmd adds a "print-config" command to |parser|.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	parser.AddCommand("print-config", "Print combined configuration and exit", `
print-config parses the combined configuration from `+configName+`, flags,
and environment variables, and then writes the configuration to stdout in INI format.
`, &printConfig{parser})
}

type printConfig struct {
	*flags.Parser `no-flag:"t"`
}

func (p printConfig) Execute([]string) error {
	var ini = flags.NewIniParser(p.Parser)
	ini.Write(os.Stdout, flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}

// Package cmd handles the jsonschemals command line: a single `--version`/
// `-V` flag and a default stdio-serve mode.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jsonschemals/jsonschemals/internal/lsprpc"
	"github.com/jsonschemals/jsonschemals/internal/server"
	"github.com/jsonschemals/jsonschemals/internal/version"
)

// Run parses args (excluding the program name, i.e. os.Args[1:]) and
// executes the requested behavior. stdin/stdout are the LSP connection's
// transport; stderr is reserved for logs.
func Run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	fs := flag.NewFlagSet("jsonschemals", flag.ContinueOnError)
	fs.SetOutput(stderr)
	printVersion := fs.Bool("version", false, "print the version and exit")
	printVersionShort := fs.Bool("V", false, "print the version and exit (shorthand)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *printVersion || *printVersionShort {
		fmt.Fprintln(stdout, version.Version())
		return nil
	}

	return serve(stdin, stdout, stderr)
}

func serve(stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	log, err := newLogger(stderr)
	if err != nil {
		return fmt.Errorf("cmd: build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck // best-effort flush on exit

	conn := lsprpc.NewConn(stdin, stdout, log, 0)
	server.New(conn, log)

	if err := conn.Serve(); err != nil {
		log.Error("connection closed with error", zap.Error(err))
		return err
	}
	return nil
}

// logLevelEnvVar overrides log verbosity, e.g.
// JSONSCHEMALS_LOG_LEVEL=debug. It has no effect on protocol behavior.
const logLevelEnvVar = "JSONSCHEMALS_LOG_LEVEL"

// newLogger builds a zap logger writing structured JSON to stderr, never
// to stdout, since stdout is the LSP wire.
func newLogger(stderr io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if v := os.Getenv(logLevelEnvVar); v != "" {
		if err := level.Set(v); err != nil {
			level = zapcore.InfoLevel
		}
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(stderr), level)
	return zap.New(core, zap.AddCaller()), nil
}

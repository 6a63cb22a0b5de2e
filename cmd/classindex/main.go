package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dshills/classindex-mcp/internal/config"
	"github.com/dshills/classindex-mcp/internal/mcp"
	"github.com/dshills/classindex-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// stdout is reserved for the MCP protocol when serving
	log.SetOutput(os.Stderr)

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("ClassIndex MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
	}

	app := &cli.App{
		Name:    "classindex",
		Usage:   "Index compiled JVM classes and find references to classes, fields and methods",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Directory holding the index database",
				Value:   mcp.DefaultDBPath,
				EnvVars: []string{config.EnvDBPath},
			},
			&cli.BoolFlag{
				Name:  "inline-strings",
				Usage: "Store strings inline instead of in the shared string table",
			},
		},
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio (default)",
				Action: serveCommand,
			},
			{
				Name:      "index",
				Aliases:   []string{"i"},
				Usage:     "Index the class files and jars under a directory",
				ArgsUsage: "[root]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Drop the stored index and re-index everything",
					},
					&cli.StringSliceFlag{
						Name:  "include",
						Usage: "Only index files matching glob patterns (e.g., --include 'lib/*.jar')",
					},
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Skip files matching glob patterns (e.g., --exclude '**/test/**')",
					},
					&cli.BoolFlag{
						Name:  "strings",
						Usage: "Also index string constants",
					},
				},
				Action: indexCommand,
			},
			{
				Name:      "refs",
				Aliases:   []string{"r"},
				Usage:     "Find references in an indexed directory",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "root",
						Usage: "Indexed directory",
						Value: ".",
					},
					&cli.StringFlag{
						Name:    "kind",
						Aliases: []string{"k"},
						Usage:   "class, field, method, to_string or string_constant",
						Value:   mcp.KindClass,
					},
					&cli.StringFlag{
						Name:    "owner",
						Aliases: []string{"o"},
						Usage:   "Declaring class of a field or method (internal name)",
					},
					&cli.StringFlag{
						Name:  "desc",
						Usage: "Method descriptor",
					},
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Only report calls with exactly --desc",
					},
					&cli.BoolFlag{
						Name:  "declaring-only",
						Usage: "Skip calls made through subclasses of --owner",
					},
					&cli.StringSliceFlag{
						Name:  "files",
						Usage: "Only report files matching glob patterns",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: refsCommand,
			},
			{
				Name:      "status",
				Usage:     "Show index statistics for a directory",
				ArgsUsage: "[root]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: statusCommand,
			},
			{
				Name:      "watch",
				Aliases:   []string{"w"},
				Usage:     "Index a directory and re-index it whenever classes change",
				ArgsUsage: "[root]",
				Action:    watchCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCommand(c *cli.Context) error {
	log.Printf("ClassIndex MCP Server v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s", storage.BuildMode, storage.DriverName)

	server, err := mcp.NewServerWithOptions(c.String("db"), mcp.BackendOptions{
		EnumerateStrings: !c.Bool("inline-strings"),
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Println("Received shutdown signal, shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Println("Server stopped")
	return nil
}

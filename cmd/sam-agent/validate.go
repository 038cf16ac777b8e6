package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solacelabs/sam-core/config"
)

// ValidateCmd loads and validates a configuration file, matching the
// teacher's validate subcommand: compact/verbose/json output, plus a
// --print-config option to dump the config with defaults applied.
type ValidateCmd struct {
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the resolved configuration."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	loader := config.NewLoader(cli.Config, nil)
	cfg, warnings, err := loader.Load()
	if err != nil {
		return c.printLoadError(cli.Config, err)
	}

	if c.PrintConfig {
		return c.printConfig(cfg)
	}

	c.printSuccess(cli.Config, warnings)
	return nil
}

func (c *ValidateCmd) printLoadError(file string, err error) error {
	switch c.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"valid": false, "file": file, "error": err.Error()})
	case "verbose":
		fmt.Fprintf(os.Stderr, "Configuration Load Error\n========================\n\nFile:  %s\nError: %s\n", file, err)
	default:
		fmt.Fprintf(os.Stderr, "%s: %s\n", file, err)
	}
	return fmt.Errorf("config validation failed")
}

func (c *ValidateCmd) printSuccess(file string, warnings []string) {
	switch c.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"valid": true, "file": file, "warnings": warnings})
	case "verbose":
		fmt.Printf("Configuration Validation Successful\n====================================\n\nFile: %s\n", file)
		for _, w := range warnings {
			fmt.Printf("warning: %s\n", w)
		}
	default:
		fmt.Printf("%s: valid\n", file)
		for _, w := range warnings {
			fmt.Printf("%s: warning: %s\n", file, w)
		}
	}
}

func (c *ValidateCmd) printConfig(cfg config.Config) error {
	switch c.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}
}

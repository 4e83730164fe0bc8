package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linguahub/permission"
	"github.com/linguahub/permission/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("permission-config - Configuration tool for the permission engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  permission-config convert <input> <output>  - Convert between formats")
	fmt.Println("  permission-config validate <file>           - Validate configuration")
	fmt.Println("  permission-config stats <file>              - Show configuration statistics")
	fmt.Println("  permission-config apply <file>              - Apply configuration to an in-memory engine")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permission-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permission-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Permissions: %d\n", len(cfg.Permissions))
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Grants:      %d\n", len(cfg.Grants))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permission-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Permissions: %d\n", len(cfg.Permissions))
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Grants:      %d\n", len(cfg.Grants))
	fmt.Println()

	if len(cfg.Permissions) > 0 {
		wildcards := 0
		inheriting := 0
		maxLevel := 0
		for _, p := range cfg.Permissions {
			if p.IsWildcard {
				wildcards++
			}
			if p.InheritsFromParent {
				inheriting++
			}
			if p.Level > maxLevel {
				maxLevel = p.Level
			}
		}
		fmt.Println("Permission Details:")
		fmt.Printf("  Wildcard nodes:   %d\n", wildcards)
		fmt.Printf("  Inheriting nodes: %d\n", inheriting)
		fmt.Printf("  Max depth:        %d\n", maxLevel)
		fmt.Println()
	}

	if len(cfg.Grants) > 0 {
		conditional := 0
		windowed := 0
		for _, g := range cfg.Grants {
			if g.Conditions != "" {
				conditional++
			}
			if !g.ValidFrom.IsZero() || !g.ValidUntil.IsZero() {
				windowed++
			}
		}
		fmt.Println("Grant Details:")
		fmt.Printf("  Conditional:   %d\n", conditional)
		fmt.Printf("  Time-windowed: %d\n", windowed)
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Cache TTL:         %dms\n", cfg.Engine.CacheTTLMs)
	fmt.Printf("  Audit buffer size: %d\n", cfg.Engine.AuditBufferSize)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permission-config apply <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	store := stores.NewMemoryGrantStore()
	engine, err := permission.NewEngine(store, permission.WithCacheConfig(cfg.Engine.CacheConfig()))
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg, store); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Permissions loaded: %d\n", len(cfg.Permissions))
	fmt.Printf("  Roles loaded:       %d\n", len(cfg.Roles))
	fmt.Printf("  Grants loaded:      %d\n", len(cfg.Grants))
}

func loadConfig(filename string) (*permission.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	loader := permission.NewConfigLoader()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(filename))
	}
}

func saveConfig(cfg *permission.Config, filename string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(filename))
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

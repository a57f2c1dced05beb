package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	engine "github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1"
	"gopkg.in/yaml.v3"
)

const (
	schemaName       = "backtest-engine-v1-config.json"
	sampleConfigName = "backtest-engine-v1-config.yaml"
)

func validatePaths(schemaPath string, sampleConfigPath string) error {
	if schemaPath == "" {
		return fmt.Errorf("schema path cannot be empty")
	}

	if sampleConfigPath == "" {
		return fmt.Errorf("sample config path cannot be empty")
	}

	return nil
}

func validateSchemaName(name string) error {
	if name == "" {
		return fmt.Errorf("schema name cannot be empty")
	}

	if filepath.Ext(name) != ".json" {
		return fmt.Errorf("schema name %q must have .json extension", name)
	}

	return nil
}

// getSchemaReference is the modeline picked up by the YAML language server.
func getSchemaReference(name string) string {
	return "# yaml-language-server: $schema=" + name + "\n"
}

func generateSchemaFile(config engine.BacktestEngineV1Config, schemaPath string) error {
	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}

	return nil
}

// generateSampleConfig leaves an existing file untouched.
func generateSampleConfig(config engine.BacktestEngineV1Config, samplePath string, schema string) error {
	if _, err := os.Stat(samplePath); err == nil {
		return nil
	}

	yamlBytes, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config: %w", err)
	}

	content := getSchemaReference(schema) + string(yamlBytes)

	if err := os.MkdirAll(filepath.Dir(samplePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(samplePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write sample config: %w", err)
	}

	return nil
}

// sampleConfig is the default config with enough capital to pass validation.
func sampleConfig() engine.BacktestEngineV1Config {
	config := engine.EmptyConfig()
	config.InitialCapital = 10000

	return config
}

func generate(outputDir string) error {
	schemaPath := filepath.Join(outputDir, schemaName)
	sampleConfigPath := filepath.Join(outputDir, sampleConfigName)

	if err := validatePaths(schemaPath, sampleConfigPath); err != nil {
		return err
	}

	if err := validateSchemaName(schemaName); err != nil {
		return err
	}

	config := sampleConfig()

	if err := generateSchemaFile(config, schemaPath); err != nil {
		return err
	}

	if err := generateSampleConfig(config, sampleConfigPath, schemaName); err != nil {
		return err
	}

	log.Printf("Schema generated at %s", schemaPath)

	return nil
}

func main() {
	outputDir := flag.String("out", "./config", "directory for the schema and sample config")
	flag.Parse()

	if err := generate(strings.TrimSpace(*outputDir)); err != nil {
		log.Fatal(err)
	}
}

// Package config builds process configuration from the environment so main
// stays lean. A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	dErrors "ciphera/pkg/domain-errors"
)

// LoadDotenv loads a .env file when one exists. Missing files are fine.
func LoadDotenv() {
	_ = godotenv.Load()
}

// NodeRef names a verifier node and where to reach it. Slice order is the
// canonical vote order.
type NodeRef struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Gateway captures the gateway process configuration.
type Gateway struct {
	Addr            string
	LogLevel        string
	SessionSecret   string
	SessionTTL      time.Duration
	SamplesRequired int
	NodeTimeout     time.Duration
	Nodes           []NodeRef
}

// Verifier captures a verifier node process configuration.
type Verifier struct {
	Addr         string
	LogLevel     string
	StorePath    string
	SamplesDir   string
	Strategy     string
	ExtractorURL string
	Tolerance    float64
}

// GatewayFromEnv builds the gateway config. The node list comes from the
// NODES variable ("name=url,name=url") or a YAML file named by NODES_FILE;
// at least one node is required.
func GatewayFromEnv() (Gateway, error) {
	cfg := Gateway{
		Addr:            envOr("GATEWAY_ADDR", ":8080"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		SessionSecret:   envOr("SESSION_SECRET", "dev-secret-change-in-production"),
		SessionTTL:      envDuration("SESSION_TTL", time.Hour),
		SamplesRequired: envInt("SAMPLES_REQUIRED", 3),
		NodeTimeout:     envDuration("NODE_TIMEOUT", 10*time.Second),
	}

	if raw := os.Getenv("NODES"); raw != "" {
		nodes, err := ParseNodeList(raw)
		if err != nil {
			return Gateway{}, err
		}
		cfg.Nodes = nodes
	} else if path := os.Getenv("NODES_FILE"); path != "" {
		nodes, err := LoadNodeFile(path)
		if err != nil {
			return Gateway{}, err
		}
		cfg.Nodes = nodes
	}

	if len(cfg.Nodes) == 0 {
		return Gateway{}, dErrors.New(dErrors.CodeValidation, "no verifier nodes configured: set NODES or NODES_FILE")
	}
	return cfg, nil
}

// VerifierFromEnv builds a verifier node config.
func VerifierFromEnv() (Verifier, error) {
	cfg := Verifier{
		Addr:         envOr("NODE_ADDR", ":8081"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		StorePath:    envOr("STORE_PATH", "data/enrollments.json"),
		SamplesDir:   envOr("SAMPLES_DIR", "data/samples"),
		Strategy:     envOr("MATCH_STRATEGY", "embedding"),
		ExtractorURL: envOr("EXTRACTOR_URL", "http://localhost:8001"),
		Tolerance:    envFloat("MATCH_TOLERANCE", 0),
	}

	switch cfg.Strategy {
	case "embedding", "signature":
	default:
		return Verifier{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("unknown MATCH_STRATEGY %q: want embedding or signature", cfg.Strategy))
	}
	return cfg, nil
}

// ParseNodeList parses "name=url,name=url" into node refs, keeping order.
func ParseNodeList(raw string) ([]NodeRef, error) {
	nodes := make([]NodeRef, 0)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("invalid node entry %q: want name=url", entry))
		}
		nodes = append(nodes, NodeRef{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)})
	}
	return nodes, nil
}

// LoadNodeFile reads a YAML node list: a top-level `nodes:` sequence of
// {name, url} entries.
func LoadNodeFile(path string) ([]NodeRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "read nodes file")
	}

	var file struct {
		Nodes []NodeRef `yaml:"nodes"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "parse nodes file")
	}
	for _, n := range file.Nodes {
		if n.Name == "" || n.URL == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "nodes file entries need both name and url")
		}
	}
	return file.Nodes, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

package configs

import (
	"flag"
	"io"
	"os"

	"github.com/hilthontt/burner/internal/infrastructure/env"
)

// configCandidates are probed in order when neither --config nor
// BURNER_CONFIG names a file.
var configCandidates = []string{
	"./config.yaml",
	"./config.yml",
	"../../config.yaml",
	"/etc/burner/config.yaml",
	"/app/config.yaml",
}

// ResolveConfigPath picks the config file from --config in args, then
// BURNER_CONFIG, then the first candidate that exists. An empty result means
// defaults and environment only.
func ResolveConfigPath(args []string) (string, error) {
	fs := flag.NewFlagSet("burner", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	if *configPath != "" {
		return *configPath, nil
	}
	if p := env.GetString("BURNER_CONFIG", ""); p != "" {
		return p, nil
	}

	for _, p := range configCandidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

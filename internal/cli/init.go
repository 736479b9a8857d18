package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/makereader/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func initAction(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := config.Path(configDir)
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "  exists: %s\n", configPath)
		fmt.Fprintf(out, "Config directory %s already initialized.\n", configDir)
		return nil
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}
	fmt.Fprintf(out, "  created: %s\n", configPath)
	fmt.Fprintf(out, "Initialized %s.\n", configDir)
	return nil
}

const exampleConfig = `# makereader configuration

# Blogs to read, as name: blog id. Remove this block to read every
# Make WordPress team blog; an empty block reads none.
sources:
  core: "38254163"
  design: "31759332"
  accessibility: "29901991"
  docs: "31760022"

api:
  format: rest          # rest | feed
  endpoint_template: "https://public-api.wordpress.com/rest/v1.1/sites/{id}/posts/"
  timeout: 5s
  user_agent: "makereader/1.0"
  # user_agent_env: MAKEREADER_USER_AGENT
  rate_limit: 0s        # minimum gap between requests
  retries: 1
  concurrency: 0        # 0 = all sources at once

cache:
  backend: memory       # memory | sqlite
  path: .makereader/cache.db
  ttl: 10m
  size: 256

output:
  max_posts: 3
  format: terminal      # terminal | json | markdown
`

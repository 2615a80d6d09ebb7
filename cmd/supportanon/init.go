// cmd/supportanon/init.go
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/colebrumley/supportanon/internal/config"
	"github.com/colebrumley/supportanon/internal/security"
)

const inventoryTemplate = `# Names known to the controller. Every entry gets a stable replacement token.
labels: []
items: []
#  - full_name: team/app/deploy
#    task_noun: Build
#    pronoun: Pipeline
views: []
nodes: []
computers: []
users: []
`

func newInitCmd() *cobra.Command {
	var (
		dataRoot string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, config.Path(configFlag), dataRoot, force)
		},
	}

	cmd.Flags().StringVar(&dataRoot, "data-root", "", "Data directory (default: ~/.local/share/supportanon)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	return cmd
}

func runInit(cmd *cobra.Command, configPath, dataRoot string, force bool) error {
	out := cmd.OutOrStdout()

	cfg := config.Default(dataRoot)
	cfg.Anonymization.Enabled = true
	if cfg.DataRoot == "" {
		return errors.New("could not determine a data root, pass --data-root")
	}
	if err := os.MkdirAll(cfg.DataRoot, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", cfg.DataRoot, err)
	}
	fmt.Fprintf(out, "Created %s\n", cfg.DataRoot)

	secrets := filepath.Dir(cfg.Resolve(cfg.Storage.Path))
	if err := security.EnsureSecretsDir(secrets); err != nil {
		return fmt.Errorf("preparing %s: %w", secrets, err)
	}

	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(out, "Keeping existing %s\n", configPath)
	} else {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", configPath, err)
		}
		if err := os.WriteFile(configPath, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s\n", configPath)
	}

	inv := cfg.Resolve(cfg.Inventory.Path)
	if _, err := os.Stat(inv); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(inv, []byte(inventoryTemplate), 0644); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s\n", inv)
	}

	fmt.Fprintln(out, "\nInitialization complete. List the controller's names in:", inv)
	return nil
}

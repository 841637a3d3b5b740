package cmd

import (
	"fmt"
	"io"

	"opentune/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// redacted replaces secrets in config show.
const redacted = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the agent configuration",
		Long:  `Commands to show and validate the agent configuration file.`,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		Long: `Loads and validates the agent configuration and prints the effective
settings, including defaults, as YAML. The node token is redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			defer application.Close()

			cfg, err := application.LoadAgentConfig()
			if err != nil {
				return err
			}
			return writeEffectiveConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file without running",
		Long: `Loads and validates the agent configuration. Exits with code 2 when the
file is missing, malformed or invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			defer application.Close()

			cfg, err := application.LoadAgentConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%s mode)\n", cfg.Path, cfg.Mode)
			return nil
		},
	}
}

// effectiveConfig is the YAML view of an AgentConfiguration.
type effectiveConfig struct {
	Mode            string           `yaml:"mode"`
	Centralized     *centralizedView `yaml:"centralized,omitempty"`
	Standalone      *standaloneView  `yaml:"standalone,omitempty"`
	WorkDir         string           `yaml:"work_dir"`
	MetricsTextfile string           `yaml:"metrics_textfile,omitempty"`
	HTTP            httpView         `yaml:"http"`
	Engine          engineView       `yaml:"engine"`
}

type centralizedView struct {
	ServerURL string `yaml:"server_url"`
	NodeID    int64  `yaml:"node_id"`
	NodeToken string `yaml:"node_token"`
	UseGit    bool   `yaml:"use_git"`
}

type standaloneView struct {
	RepoURL     string `yaml:"repo_url,omitempty"`
	Branch      string `yaml:"branch,omitempty"`
	PackagePath string `yaml:"package_path,omitempty"`
	ConfigPath  string `yaml:"config_path"`
}

type httpView struct {
	MaxAttempts     int      `yaml:"max_attempts"`
	Backoff         []string `yaml:"backoff"`
	Timeout         string   `yaml:"timeout"`
	DownloadTimeout string   `yaml:"download_timeout"`
}

type engineView struct {
	ScriptExtensions  []string `yaml:"script_extensions"`
	ArtifactExtension string   `yaml:"artifact_extension"`
	Compile           []string `yaml:"compile"`
	Test              []string `yaml:"test"`
	Apply             []string `yaml:"apply"`
}

func newEffectiveConfig(cfg *config.AgentConfiguration) effectiveConfig {
	view := effectiveConfig{
		Mode:            string(cfg.Mode),
		WorkDir:         cfg.WorkDir,
		MetricsTextfile: cfg.MetricsTextfile,
		HTTP: httpView{
			MaxAttempts:     cfg.HTTP.MaxAttempts,
			Timeout:         cfg.HTTP.Timeout.String(),
			DownloadTimeout: cfg.HTTP.DownloadTimeout.String(),
		},
		Engine: engineView{
			ScriptExtensions:  cfg.Engine.ScriptExtensions,
			ArtifactExtension: cfg.Engine.ArtifactExtension,
			Compile:           cfg.Engine.Compile,
			Test:              cfg.Engine.Test,
			Apply:             cfg.Engine.Apply,
		},
	}
	for _, d := range cfg.HTTP.Backoff {
		view.HTTP.Backoff = append(view.HTTP.Backoff, d.String())
	}

	if c := cfg.Centralized; c != nil {
		token := ""
		if c.NodeToken != "" {
			token = redacted
		}
		view.Centralized = &centralizedView{
			ServerURL: c.ServerURL,
			NodeID:    c.NodeID,
			NodeToken: token,
			UseGit:    c.UseGit,
		}
	}
	if s := cfg.Standalone; s != nil {
		view.Standalone = &standaloneView{
			RepoURL:     s.RepoURL,
			Branch:      s.Branch,
			PackagePath: s.PackagePath,
			ConfigPath:  s.ConfigPath,
		}
	}
	return view
}

func writeEffectiveConfig(w io.Writer, cfg *config.AgentConfiguration) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newEffectiveConfig(cfg)); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

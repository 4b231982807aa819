package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/verifiedlabs/fstarup/internal/install"
	"github.com/verifiedlabs/fstarup/internal/manifest"
	"github.com/verifiedlabs/fstarup/internal/userconf"
)

func newInstallCommand(logLevel *string) *cobra.Command {
	var (
		installDir       string
		cacheDir         string
		keyringPath      string
		mirrorBaseURL    string
		githubToken      string
		skipKaramel      bool
		skipUnquarantine bool
	)
	cmd := &cobra.Command{
		Use:   "install [VERSION]",
		Short: "Install a pinned toolchain stack",
		Long: `Install downloads, verifies, and builds one stack version. Without an
argument the registry's latest version is installed. Stages run strictly
in order and the first failure aborts; a partial installation is left on
disk for inspection.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(*logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			registry, err := manifest.Load()
			if err != nil {
				return err
			}
			versionID := registry.Latest()
			if len(args) == 1 && args[0] != "latest" {
				versionID = args[0]
			}

			base, err := baseDir()
			if err != nil {
				return err
			}
			if installDir == "" {
				installDir = filepath.Join(base, "stacks", versionID)
			}
			if cacheDir == "" {
				cacheDir = filepath.Join(base, "cache")
			}

			opts := install.Options{
				InstallDir:       installDir,
				CacheDir:         cacheDir,
				Version:          versionID,
				KeyringPath:      keyringPath,
				GitHubToken:      githubToken,
				MirrorBaseURL:    mirrorBaseURL,
				SkipKaramel:      skipKaramel,
				SkipUnquarantine: skipUnquarantine,
			}
			applyConfigAndEnv(cmd, &opts)

			installer := install.New(registry, log)
			result, err := installer.Install(cmd.Context(), opts)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s installed to %s\n",
				color.GreenString("✓"), result.Version, result.Layout.Root)
			if result.Env != nil {
				fmt.Println("\nTo use this stack, run:")
				fmt.Printf("  eval \"$(fstarup env --dir %s)\"\n", result.Layout.Root)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&installDir, "dir", "", "Installation directory (default ~/.fstarup/stacks/VERSION)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Artifact cache directory (default ~/.fstarup/cache)")
	cmd.Flags().StringVar(&keyringPath, "keyring", "", "Armored public keyring for signature verification")
	cmd.Flags().StringVar(&mirrorBaseURL, "mirror", "", "Replace https://github.com with this base URL for downloads")
	cmd.Flags().StringVar(&githubToken, "github-token", "", "Token for authenticated release-metadata lookups")
	cmd.Flags().BoolVar(&skipKaramel, "skip-karamel", false, "Skip the KaRaMeL build")
	cmd.Flags().BoolVar(&skipUnquarantine, "skip-unquarantine", false, "Skip macOS quarantine-attribute removal")
	return cmd
}

// applyConfigAndEnv layers the optional Lua config file and FSTARUP_*
// environment variables over the flag values. Precedence, lowest to
// highest: config file, flag, environment.
func applyConfigAndEnv(cmd *cobra.Command, opts *install.Options) {
	if path, err := configPath(); err == nil {
		if settings, err := userconf.Load(path); err == nil {
			if opts.MirrorBaseURL == "" {
				opts.MirrorBaseURL = settings.MirrorBaseURL
			}
			if opts.GitHubToken == "" {
				opts.GitHubToken = settings.GitHubToken
			}
			if !cmd.Flags().Changed("skip-karamel") && settings.SkipKaramel {
				opts.SkipKaramel = true
			}
			if !cmd.Flags().Changed("skip-unquarantine") && settings.SkipUnquarantine {
				opts.SkipUnquarantine = true
			}
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: ignoring config file: %v\n", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("FSTARUP")
	v.AutomaticEnv()
	if token := v.GetString("github_token"); token != "" {
		opts.GitHubToken = token
	}
	if mirror := v.GetString("mirror"); mirror != "" {
		opts.MirrorBaseURL = mirror
	}
	if raw := v.GetString("skip_karamel"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			opts.SkipKaramel = b
		}
	}
	if raw := v.GetString("skip_unquarantine"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			opts.SkipUnquarantine = b
		}
	}
}

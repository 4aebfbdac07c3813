package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"guardian/internal/app"
	"guardian/internal/config"
)

// PassphraseEnv supplies the key passphrase when stdin is not a terminal.
const PassphraseEnv = "GUARDIAN_PASSPHRASE"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when none exists.
func loadConfig() (*config.Config, app.Defaults, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, defaults, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath, defaults.BaseDir)
	if errors.Is(err, os.ErrNotExist) {
		return config.NewConfig(defaults.BaseDir), defaults, nil
	}
	if err != nil {
		return nil, defaults, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a GuardianApp for the --dir workspace.
// The caller must defer a.Close().
func newApp(cmd *cobra.Command, operation string, args []string) (*app.GuardianApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
	}

	a, err := app.NewGuardianApp(cmd.Context(), cfg, dir, app.NewOperation(operation, args, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on the terminal, or reads GUARDIAN_PASSPHRASE otherwise.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if p := os.Getenv(PassphraseEnv); p != "" {
			return p, nil
		}
		return "", fmt.Errorf("stdin is not a terminal; set %s", PassphraseEnv)
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// unlock asks for the passphrase when the workspace stores encrypted snapshots.
func unlock(a *app.GuardianApp) error {
	if !a.NeedsUnlock() {
		return nil
	}
	p, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	return a.Unlock(p)
}

// confirm asks a yes/no question on the terminal. It refuses when stdin is not interactive.
func confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing to continue without --yes: stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func shortHash(h *string) string {
	if h == nil {
		return "-"
	}
	if len(*h) > 12 {
		return (*h)[:12]
	}
	return *h
}

var rootCmd = &cobra.Command{
	Use:          "guardian",
	Short:        "Checkpoint and session manager for a working directory",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		storage := cfg.StorageDir
		if storage == "" {
			storage = "<workspace>/" + app.StorageDirName
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Storage Dir:  %s\n", storage)
		fmt.Printf("Store:        %s\n", cfg.Store.Type)
		fmt.Printf("Snapshots:    %v (vault %s, encryption %s)\n", cfg.Snapshot.Enabled, cfg.Snapshot.Vault.Type, cfg.Encryption.Type)
		fmt.Printf("VCS:          %s\n", cfg.VCS.Type)
		fmt.Printf("Auto-save:    %v every %d min, max %d per session, on AI changes %v\n",
			cfg.Guardian.AutoSaveEnabled,
			cfg.Guardian.AutoSaveIntervalMinutes,
			cfg.Guardian.MaxCheckpointsPerSession,
			cfg.Guardian.AutoCheckpointOnAIChanges)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		p1, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			p2, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if p1 != p2 {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := app.SetupKeys(cfg, p1); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Printf("Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [NAME]",
	Short: "Start a new session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "StartSession", args)
		if err != nil {
			return err
		}
		defer a.Close()

		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		s, err := a.StartSession(name)
		if err != nil {
			return err
		}
		fmt.Printf("Started session %s (%s)\n", s.Name, s.ID)
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "EndSession", args)
		if err != nil {
			return err
		}
		defer a.Close()

		s, ok := a.ActiveSession()
		if err := a.EndSession(); err != nil {
			return err
		}
		if !ok {
			fmt.Println("No active session.")
			return nil
		}
		fmt.Printf("Ended session %s (%s)\n", s.Name, s.ID)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ListSessions", args)
		if err != nil {
			return err
		}
		defer a.Close()

		sessions := a.ListSessions()
		if len(sessions) == 0 {
			fmt.Println("No sessions.")
			return nil
		}

		active, _ := a.ActiveSession()
		for _, s := range sessions {
			printSession(s, active != nil && active.ID == s.ID)
		}
		return nil
	},
}

// checkpoint command
var checkpointCmd = &cobra.Command{
	Use:     "checkpoint",
	Aliases: []string{"cp"},
	Short:   "Manage checkpoints",
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create [NAME]",
	Short: "Create a checkpoint of the workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "CreateCheckpoint", args)
		if err != nil {
			return err
		}
		defer a.Close()

		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		cp, err := a.CreateCheckpoint(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Printf("Created checkpoint %s (%d files, commit %s)\n", cp.ID, cp.FileCount, shortHash(cp.CommitHash))
		if wantCopy, _ := cmd.Flags().GetBool("copy"); wantCopy {
			copyID(cp.ID)
		}
		return nil
	},
}

var checkpointQuickCmd = &cobra.Command{
	Use:   "quick",
	Short: "Create a checkpoint with a generated name",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "QuickSave", args)
		if err != nil {
			return err
		}
		defer a.Close()

		cp, err := a.QuickSave(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%d files)\n", cp.Name, cp.ID, cp.FileCount)
		if wantCopy, _ := cmd.Flags().GetBool("copy"); wantCopy {
			copyID(cp.ID)
		}
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")

		a, err := newApp(cmd, "ListCheckpoints", args)
		if err != nil {
			return err
		}
		defer a.Close()

		checkpoints := a.ListCheckpoints(session)
		if len(checkpoints) == 0 {
			fmt.Println("No checkpoints.")
			return nil
		}
		for _, c := range checkpoints {
			printCheckpoint(c)
		}
		return nil
	},
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeleteCheckpoint", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteCheckpoint(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted checkpoint %s\n", args[0])
		return nil
	},
}

var checkpointRollbackCmd = &cobra.Command{
	Use:   "rollback ID",
	Short: "Restore the workspace to a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp(cmd, "Rollback", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if !yes {
			ok, err := confirm(fmt.Sprintf("Roll back %s to checkpoint %s?", a.WorkDir(), args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}
		if err := unlock(a); err != nil {
			return err
		}

		changes, err := a.Rollback(cmd.Context(), args[0])
		if err != nil {
			if len(changes) > 0 {
				fmt.Println("Partially applied:")
				printChanges(changes, false)
			}
			return err
		}
		printChanges(changes, false)
		return nil
	},
}

var checkpointDiffCmd = &cobra.Command{
	Use:   "diff ID",
	Short: "Show how the workspace differs from a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("content")

		a, err := newApp(cmd, "Diff", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}
		changes, err := a.Diff(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printChanges(changes, verbose)
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Checkpoint the workspace automatically",
	Long: "Runs until interrupted, quick-saving on the configured interval while a session is active.\n" +
		externalTriggerHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cmd, "Watch", args)
		if err != nil {
			return err
		}
		defer a.Close()

		external, release := externalTrigger(ctx)
		defer release()

		fmt.Fprintf(os.Stderr, "Watching %s (pid %d)\n", a.WorkDir(), os.Getpid())
		return a.Watch(ctx, external)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("dir", "C", "", "Workspace directory (default: current directory)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	// session subcommands
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionListCmd)

	// checkpoint subcommands
	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCreateCmd.Flags().Bool("copy", false, "Copy the new checkpoint id to the clipboard")
	checkpointCmd.AddCommand(checkpointQuickCmd)
	checkpointQuickCmd.Flags().Bool("copy", false, "Copy the new checkpoint id to the clipboard")
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointListCmd.Flags().StringP("session", "s", "", "Only list checkpoints of this session")
	checkpointCmd.AddCommand(checkpointDeleteCmd)
	checkpointCmd.AddCommand(checkpointRollbackCmd)
	checkpointRollbackCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	checkpointCmd.AddCommand(checkpointDiffCmd)
	checkpointDiffCmd.Flags().Bool("content", false, "Print old and new file contents")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(watchCmd)
}

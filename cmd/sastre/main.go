package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/rest"
	"github.com/netops-tools/sastre/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, types.ErrInvalidArg) || errors.Is(err, types.ErrInvalidTag) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sastre",
	Short: "Sastre - Cisco SD-WAN automation toolset",
	Long: `Sastre manages configuration items of Cisco SD-WAN controllers:
backup to local workdirs, restore with reference rewriting, ordered
delete, offline transform and migration of backups across releases.

Controller address and credentials can come from flags or from the
SASTRE_ADDRESS, SASTRE_USERNAME, SASTRE_PASSWORD and SASTRE_TENANT
environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("json-log")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Sastre version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	pf := rootCmd.PersistentFlags()
	pf.String("address", envDefault("SASTRE_ADDRESS", ""), "controller URL or host")
	pf.String("user", envDefault("SASTRE_USERNAME", ""), "controller username")
	pf.String("password", envDefault("SASTRE_PASSWORD", ""), "controller password")
	pf.String("tenant", envDefault("SASTRE_TENANT", ""), "tenant name (multi-tenant deployments)")
	pf.Duration("timeout", 300*time.Second, "per-request timeout")
	pf.Bool("verify-tls", false, "verify the controller TLS certificate")
	pf.String("root-dir", envDefault("SASTRE_ROOT_DIR", "."), "base directory for relative workdirs")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("json-log", false, "log in JSON instead of console format")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(certCmd)
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connect builds an authenticated controller client from the global flags.
func connect(cmd *cobra.Command) (*rest.Client, error) {
	address, _ := cmd.Flags().GetString("address")
	user, _ := cmd.Flags().GetString("user")
	password, _ := cmd.Flags().GetString("password")
	tenant, _ := cmd.Flags().GetString("tenant")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	verifyTLS, _ := cmd.Flags().GetBool("verify-tls")

	if address == "" || user == "" {
		return nil, fmt.Errorf("%w: controller address and user are required", types.ErrInvalidArg)
	}
	if !strings.Contains(address, "://") {
		address = "https://" + address
	}
	return rest.NewClient(cmd.Context(), rest.Config{
		BaseURL:   address,
		Username:  user,
		Password:  password,
		Tenant:    tenant,
		Timeout:   timeout,
		VerifyTLS: verifyTLS,
	})
}

// resolveWorkdir anchors a relative workdir under --root-dir.
func resolveWorkdir(cmd *cobra.Command, workdir string) string {
	if filepath.IsAbs(workdir) {
		return workdir
	}
	rootDir, _ := cmd.Flags().GetString("root-dir")
	return filepath.Join(rootDir, workdir)
}

// defaultWorkdir derives the backup workdir name from the controller
// address and today's date, the way backups are usually filed.
func defaultWorkdir(cmd *cobra.Command) string {
	address, _ := cmd.Flags().GetString("address")
	host := address
	if u, err := url.Parse(address); err == nil && u.Host != "" {
		host = u.Hostname()
	} else if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	return fmt.Sprintf("backup_%s_%s", host, time.Now().Format("20060102"))
}

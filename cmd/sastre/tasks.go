package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netops-tools/sastre/pkg/action"
	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/migrate"
	"github.com/netops-tools/sastre/pkg/nametpl"
	"github.com/netops-tools/sastre/pkg/rest"
	"github.com/netops-tools/sastre/pkg/task"
	"github.com/netops-tools/sastre/pkg/types"
)

func taskFilter(cmd *cobra.Command) (task.Filter, error) {
	include, _ := cmd.Flags().GetString("regex")
	exclude, _ := cmd.Flags().GetString("not-regex")
	return task.NewFilter(include, exclude)
}

var backupCmd = &cobra.Command{
	Use:   "backup <tag>...",
	Short: "Save configuration items to a local workdir",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, err := catalog.ParseTags(args)
		if err != nil {
			return err
		}
		filter, err := taskFilter(cmd)
		if err != nil {
			return err
		}
		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		workdir, _ := cmd.Flags().GetString("workdir")
		if workdir == "" {
			workdir = defaultWorkdir(cmd)
		}
		noRollover, _ := cmd.Flags().GetBool("no-rollover")
		saveRunning, _ := cmd.Flags().GetBool("save-running")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		b := &task.Backup{
			Ctrl:        client,
			Workdir:     resolveWorkdir(cmd, workdir),
			Tags:        tags,
			Filter:      filter,
			NoRollover:  noRollover,
			SaveRunning: saveRunning,
			DryRun:      dryRun,
		}
		tally, err := b.Run(cmd.Context())
		if err != nil {
			return err
		}
		return failOnTally(tally)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <tag>...",
	Short: "Push items from a backup workdir to the controller",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, err := catalog.ParseTags(args)
		if err != nil {
			return err
		}
		filter, err := taskFilter(cmd)
		if err != nil {
			return err
		}
		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		workdir, _ := cmd.Flags().GetString("workdir")
		update, _ := cmd.Flags().GetBool("update")
		attach, _ := cmd.Flags().GetBool("attach")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		r := &task.Restore{
			Ctrl:    client,
			Acts:    actionManager(client),
			Workdir: resolveWorkdir(cmd, workdir),
			Tags:    tags,
			Filter:  filter,
			Update:  update,
			Attach:  attach,
			DryRun:  dryRun,
		}
		tally, err := r.Run(cmd.Context())
		if err != nil {
			return err
		}
		return failOnTally(tally)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <tag>...",
	Short: "Remove configuration items from the controller",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, err := catalog.ParseTags(args)
		if err != nil {
			return err
		}
		filter, err := taskFilter(cmd)
		if err != nil {
			return err
		}
		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		detach, _ := cmd.Flags().GetBool("detach")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		d := &task.Delete{
			Ctrl:   client,
			Acts:   actionManager(client),
			Tags:   tags,
			Filter: filter,
			Detach: detach,
			DryRun: dryRun,
		}
		tally, err := d.Run(cmd.Context())
		if err != nil {
			return err
		}
		return failOnTally(tally)
	},
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Rename items of a backup according to a recipe",
	RunE: func(cmd *cobra.Command, args []string) error {
		workdir, _ := cmd.Flags().GetString("workdir")
		output, _ := cmd.Flags().GetString("output")
		recipePath, _ := cmd.Flags().GetString("recipe")
		copyMode, _ := cmd.Flags().GetBool("copy")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		recipe, err := nametpl.LoadRecipe(recipePath)
		if err != nil {
			return err
		}
		tr := &task.Transform{
			SrcDir: resolveWorkdir(cmd, workdir),
			DstDir: resolveWorkdir(cmd, output),
			Recipe: recipe,
			Copy:   copyMode,
			DryRun: dryRun,
		}
		tally, err := tr.Run(cmd.Context())
		if err != nil {
			return err
		}
		return failOnTally(tally)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite a pre-20.1 backup for a 20.1 target",
	Long: `Migrate rewrites feature and device templates of an 18.4 or 19.2
backup so the result restores cleanly on a 20.1 controller. With no
source workdir, a backup of the live controller is taken first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workdir, _ := cmd.Flags().GetString("workdir")
		output, _ := cmd.Flags().GetString("output")
		recipePath, _ := cmd.Flags().GetString("recipe")
		nameTemplate, _ := cmd.Flags().GetString("name")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		recipe, err := migrate.Default()
		if recipePath != "" {
			recipe, err = migrate.Load(recipePath)
		}
		if err != nil {
			return err
		}

		// A live source is snapshotted next to the output first.
		if workdir == "" {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			workdir = output + "_src"
			b := &task.Backup{
				Ctrl:    client,
				Workdir: resolveWorkdir(cmd, workdir),
				Tags:    []types.Tag{types.TagAll},
			}
			if _, err := b.Run(cmd.Context()); err != nil {
				return fmt.Errorf("snapshotting live controller: %w", err)
			}
		}

		m := &task.Migrate{
			SrcDir:       resolveWorkdir(cmd, workdir),
			DstDir:       resolveWorkdir(cmd, output),
			Recipe:       recipe,
			NameTemplate: nameTemplate,
			DryRun:       dryRun,
		}
		tally, err := m.Run(cmd.Context())
		if err != nil {
			return err
		}
		return failOnTally(tally)
	},
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Restore or set WAN edge certificate validity",
	RunE: func(cmd *cobra.Command, args []string) error {
		workdir, _ := cmd.Flags().GetString("workdir")
		validity, _ := cmd.Flags().GetString("validity")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		if workdir != "" {
			workdir = resolveWorkdir(cmd, workdir)
		}
		c := &task.Certificate{
			Ctrl:     client,
			Acts:     actionManager(client),
			Workdir:  workdir,
			Validity: validity,
			DryRun:   dryRun,
		}
		tally, err := c.Run(cmd.Context())
		if err != nil {
			return err
		}
		return failOnTally(tally)
	},
}

func init() {
	backupCmd.Flags().String("workdir", "", "backup directory (default backup_<host>_<date>)")
	backupCmd.Flags().Bool("no-rollover", false, "reuse an existing workdir instead of rolling it over")
	backupCmd.Flags().Bool("save-running", false, "also save per-device running configurations")
	addItemFlags(backupCmd)

	restoreCmd.Flags().String("workdir", "", "backup directory or zip archive to restore from")
	restoreCmd.Flags().Bool("update", false, "overwrite items that already exist under the same name")
	restoreCmd.Flags().Bool("attach", false, "re-attach templates and re-activate the vSmart policy")
	_ = restoreCmd.MarkFlagRequired("workdir")
	addItemFlags(restoreCmd)

	deleteCmd.Flags().Bool("detach", false, "detach templates and deactivate the vSmart policy first")
	addItemFlags(deleteCmd)

	transformCmd.Flags().String("workdir", "", "source backup directory or zip archive")
	transformCmd.Flags().String("output", "", "destination workdir")
	transformCmd.Flags().String("recipe", "", "transform recipe YAML file")
	transformCmd.Flags().Bool("copy", false, "duplicate matching items under the new name instead of renaming")
	transformCmd.Flags().Bool("dry-run", false, "log decisions without writing")
	_ = transformCmd.MarkFlagRequired("workdir")
	_ = transformCmd.MarkFlagRequired("output")
	_ = transformCmd.MarkFlagRequired("recipe")

	migrateCmd.Flags().String("workdir", "", "source backup (omit to snapshot the live controller)")
	migrateCmd.Flags().String("output", "", "destination workdir")
	migrateCmd.Flags().String("recipe", "", "migration recipe YAML file (default embedded 20.1 recipe)")
	migrateCmd.Flags().String("name", "", "rename template, e.g. \"migrated_{name}\"")
	migrateCmd.Flags().Bool("dry-run", false, "log decisions without writing")
	_ = migrateCmd.MarkFlagRequired("output")

	certCmd.Flags().String("workdir", "", "restore certificate statuses from this backup")
	certCmd.Flags().String("validity", "", "set every WAN edge to this status (valid, invalid, staging)")
	certCmd.Flags().Bool("dry-run", false, "log decisions without pushing")
}

// addItemFlags attaches the flags shared by the item-walking tasks.
func addItemFlags(cmd *cobra.Command) {
	cmd.Flags().String("regex", "", "only include items whose name matches")
	cmd.Flags().String("not-regex", "", "exclude items whose name matches")
	cmd.Flags().Bool("dry-run", false, "log decisions without changing anything")
}

func actionManager(client *rest.Client) *action.Manager {
	return action.NewManager(client, rest.DefaultActionTimeout, rest.DefaultPollInterval)
}

// failOnTally maps per-item failures to a non-zero exit.
func failOnTally(tally task.Tally) error {
	if tally.Failed > 0 {
		return fmt.Errorf("%d items failed", tally.Failed)
	}
	return nil
}

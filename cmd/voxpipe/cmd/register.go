package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/store"
	"github.com/voxpipe/voxpipe/pkg/format"
)

var registerCmd = &cobra.Command{
	Use:   "register <path>...",
	Short: "Register recordings for processing",
	Long: `Register one or more recordings for processing.

Registration is idempotent on (path, size): re-registering a file that is
already known prints its existing id and changes nothing. The media kind
is inferred from the file extension.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrateUp(ctx, db, logger); err != nil {
		return err
	}
	st := store.New(db.DB, logger)

	var failed bool
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			failed = true
			continue
		}
		if info.IsDir() {
			fmt.Fprintf(os.Stderr, "skipping %s: is a directory\n", path)
			failed = true
			continue
		}

		file, created, err := st.RegisterFile(ctx, path, info.Size(), models.KindForPath(path))
		if err != nil {
			return fmt.Errorf("registering %s: %w", path, err)
		}

		verb := "registered"
		if !created {
			verb = "already registered"
		}
		fmt.Printf("%s %s (%s, %s, %s)\n",
			verb, path, file.ID, file.Kind, format.Bytes(file.ByteSize))
	}

	if failed {
		return fmt.Errorf("some paths could not be registered")
	}
	return nil
}

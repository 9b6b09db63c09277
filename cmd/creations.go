package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vitrinehq/vitrine/internal/creation"
)

var creationsCmd = &cobra.Command{
	Use:   "creations",
	Short: "Inspect and exchange the creation history",
}

var exportOut string

func init() {
	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export one creation as a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreationsExport,
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default <id>.json)")

	creationsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the creation history, newest first",
		Args:  cobra.NoArgs,
		RunE:  runCreationsList,
	})
	creationsCmd.AddCommand(exportCmd)
	creationsCmd.AddCommand(&cobra.Command{
		Use:   "import <file>...",
		Short: "Import previously exported creations",
		Long: `Import reads exported creation files and stores them. A file may hold a
single record or an array of records. Records whose ID already exists are
skipped, never duplicated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCreationsImport,
	})
	rootCmd.AddCommand(creationsCmd)
}

// openStore opens the history store directly, without the full app graph.
// SQLite in WAL mode tolerates this alongside a running server.
func openStore() (*creation.Store, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := creation.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening creation store: %w", err)
	}
	return store, nil
}

func runCreationsList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing creations: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No creations yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tCREATED\tNAME")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			c.ID, c.Kind, c.CreatedAt.Format("2006-01-02 15:04"), c.Name)
	}
	return w.Flush()
}

func runCreationsExport(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid creation id %q: %w", args[0], err)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := store.Get(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("loading creation: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding creation: %w", err)
	}

	out := exportOut
	if out == "" {
		out = id.String() + ".json"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Printf("Exported %q to %s\n", c.Name, out)
	return nil
}

func runCreationsImport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var imported, skipped int
	for _, path := range args {
		records, err := readExportFile(path)
		if err != nil {
			return err
		}
		for _, c := range records {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			_, ok, err := store.Import(cmd.Context(), c)
			if err != nil {
				return fmt.Errorf("%s: importing %s: %w", path, c.ID, err)
			}
			if ok {
				imported++
			} else {
				skipped++
			}
		}
	}

	fmt.Printf("Imported %d creation(s), skipped %d already present.\n", imported, skipped)
	return nil
}

// readExportFile parses an export file holding either one record or an
// array of records.
func readExportFile(path string) ([]*creation.Creation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	records, err := creation.DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/firetrack/internal/cli"
	"github.com/Veraticus/firetrack/internal/ofx"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file-or-directory>...",
		Short: "Import OFX/QFX bank statements",
		Long: `Import transactions from OFX or QFX statement files.

Directories are scanned for .ofx and .qfx files. Transactions already in the
database are skipped, so re-importing a statement is safe.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("categorise", false, "Categorise and apply the imported transactions afterwards")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	files, err := collectStatementFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No .ofx or .qfx files found"))
		return nil
	}

	inserted, err := importFiles(cmd, files)
	if err != nil {
		return err
	}

	if categorise, _ := cmd.Flags().GetBool("categorise"); categorise && inserted > 0 {
		sub := categoriseCmd()
		sub.SetContext(ctx)
		sub.SetOut(out)
		sub.SetErr(cmd.ErrOrStderr())
		if err := sub.Flags().Set("apply", "true"); err != nil {
			return err
		}
		if err := sub.Flags().Set("limit", fmt.Sprint(inserted)); err != nil {
			return err
		}
		return runCategorise(sub, nil)
	}
	return nil
}

// importFiles parses and stores each statement, returning how many new transactions were saved.
// A file that fails to parse is reported and skipped.
func importFiles(cmd *cobra.Command, files []string) (int, error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := initStorage(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeQuietly(store)

	parser := ofx.NewParser(slog.Default())
	var parsed, inserted int
	for _, path := range files {
		stmt, err := parseStatement(cmd, parser, path)
		if err != nil {
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", filepath.Base(path), err)))
			continue
		}

		n, err := store.SaveTransactions(ctx, stmt.Transactions)
		if err != nil {
			return inserted, fmt.Errorf("failed to save transactions from %s: %w", path, err)
		}
		parsed += len(stmt.Transactions)
		inserted += n

		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s: %d transactions, %d new (accounts: %s)",
			filepath.Base(path), len(stmt.Transactions), n, strings.Join(stmt.Accounts, ", "))))
	}

	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Imported %d new transactions, %d already present", inserted, parsed-inserted)))
	return inserted, nil
}

func parseStatement(cmd *cobra.Command, parser *ofx.Parser, path string) (*ofx.Statement, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parser.ParseFile(cmd.Context(), f)
}

// collectStatementFiles expands directories into the statement files they contain.
func collectStatementFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot list %s: %w", arg, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".ofx", ".qfx":
				files = append(files, filepath.Join(arg, e.Name()))
			}
		}
	}
	return files, nil
}

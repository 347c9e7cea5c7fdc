package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"facescan/internal/imaging"
	"facescan/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and seed the media catalog",
	}
	ledgerCmd.AddCommand(newLedgerStatsCommand(ctx))
	ledgerCmd.AddCommand(newLedgerAddCommand(ctx))
	return ledgerCmd
}

func openLedger(cmd *cobra.Command, ctx *commandContext) (*ledger.Ledger, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cmd.Context(), cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.CatalogPath(), err)
	}
	return l, nil
}

func newLedgerStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and scan progress counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd, ctx)
			if err != nil {
				return err
			}
			defer l.Close()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Metric", "Count"},
				statsRows(stats),
				[]columnAlignment{alignLeft, alignRight},
				shouldColorize(out),
			))
			return nil
		},
	}
}

func statsRows(stats ledger.Stats) [][]string {
	title := cases.Title(language.Und)
	entries := []struct {
		label string
		value int
	}{
		{"images", stats.Media},
		{"on removable storage", stats.Removable},
		{"scanned", stats.Scanned},
		{"pending", stats.Pending},
		{"faces", stats.Faces},
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{title.String(e.label), strconv.Itoa(e.value)})
	}
	return rows
}

func newLedgerAddCommand(ctx *commandContext) *cobra.Command {
	var storageID string
	var removable bool
	var orientation int

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Register image files in the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if orientation < imaging.Rotate0 || orientation > imaging.Rotate270 {
				return fmt.Errorf("orientation must be 0-3, got %d", orientation)
			}
			l, err := openLedger(cmd, ctx)
			if err != nil {
				return err
			}
			defer l.Close()

			storageType := ledger.StorageInternal
			if removable {
				storageType = ledger.StorageRemovable
			}
			rows := make([][]string, 0, len(args))
			var errs []error
			for _, arg := range args {
				item, err := addMedia(cmd.Context(), l, arg, storageID, storageType, orientation)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				rows = append(rows, []string{
					item.MediaID[:8],
					item.Path,
					fmt.Sprintf("%dx%d", item.Width, item.Height),
					item.MIMEType,
				})
			}

			out := cmd.OutOrStdout()
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Path", "Size", "Type"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
					shouldColorize(out),
				))
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVar(&storageID, "storage-id", "internal", "Storage identifier recorded with each item")
	cmd.Flags().BoolVar(&removable, "removable", false, "Mark the items as living on removable storage")
	cmd.Flags().IntVar(&orientation, "orientation", 0, "Orientation hint: 0=0°, 1=90°, 2=180°, 3=270°")
	return cmd
}

func addMedia(ctx context.Context, l *ledger.Ledger, arg, storageID string, storageType ledger.StorageType, orientation int) (ledger.MediaItem, error) {
	path, err := resolveMediaPath(arg)
	if err != nil {
		return ledger.MediaItem{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return ledger.MediaItem{}, fmt.Errorf("inspect %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return ledger.MediaItem{}, fmt.Errorf("%s is not a regular file", path)
	}
	mime := imaging.MIMEForExtension(filepath.Ext(path))
	if mime == "" {
		return ledger.MediaItem{}, fmt.Errorf("%s: unrecognised image extension", path)
	}
	width, height, err := imaging.Probe(path)
	if err != nil {
		return ledger.MediaItem{}, fmt.Errorf("probe %s: %w", path, err)
	}
	return l.AddMedia(ctx, ledger.MediaItem{
		Path:        path,
		StorageID:   strings.TrimSpace(storageID),
		StorageType: storageType,
		Width:       width,
		Height:      height,
		Orientation: orientation,
		MIMEType:    mime,
	})
}

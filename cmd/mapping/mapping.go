// Package mapping provides commands to inspect and reset the mapping stores
package mapping

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/certmigrate/internal/app"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
)

// Command creates and returns the mapping command
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Inspect, verify or clear the source to destination mapping stores",
	}
	cmd.AddCommand(showCommand(ctx), verifyCommand(ctx), clearCommand(ctx))
	return cmd
}

func openSet(ctx *app.Context) (*mapping.Set, error) {
	return app.OpenStores(&ctx.Settings.Mapping, nil)
}

func showCommand(ctx *app.Context) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show <kind>",
		Short: "Print the entries of one mapping store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := mapping.ParseKind(args[0])
			if err != nil {
				return err
			}
			set, err := openSet(ctx)
			if err != nil {
				return err
			}
			return show(cmd.OutOrStdout(), set.Store(kind), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Print at most n entries, 0 prints all")
	return cmd
}

func verifyCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [kind]",
		Short: "Check that every mapping store is a one to one mapping",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := openSet(ctx)
			if err != nil {
				return err
			}
			kinds := mapping.AllKinds()
			if len(args) == 1 {
				kind, err := mapping.ParseKind(args[0])
				if err != nil {
					return err
				}
				kinds = []mapping.Kind{kind}
			}
			return verify(cmd.OutOrStdout(), set, kinds)
		},
	}
}

func clearCommand(ctx *app.Context) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear <kind>",
		Short: "Remove every entry of one mapping store",
		Long: `Clear empties the mapping store of one kind. The next migrate run will treat every
legacy record of that kind as not yet migrated, so only use it after the destination
rows were removed as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := mapping.ParseKind(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to clear the %s mapping without --yes", kind)
			}
			set, err := openSet(ctx)
			if err != nil {
				return err
			}
			store := set.Store(kind)
			n := store.Len()
			if err := store.Clear(); err != nil {
				return err
			}
			ctx.Logger.Info("mapping store cleared",
				logger.String("kind", string(kind)),
				logger.Int("entries", n),
				logger.String("path", store.Path()))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d %s entries from %s\n", n, kind, store.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing the store")
	return cmd
}

// show writes one tab aligned line per entry
func show(w io.Writer, store *mapping.Store, limit int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DESTINATION\tSOURCE\tAUX")
	for i, e := range store.Entries() {
		if limit > 0 && i == limit {
			break
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.DestinationID, e.SourceID, formatAux(e.Aux))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d entries in %s\n", store.Len(), store.Path())
	return err
}

func formatAux(aux map[string]any) string {
	if len(aux) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(aux))
	for _, k := range slices.Sorted(maps.Keys(aux)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, aux[k]))
	}
	return strings.Join(parts, " ")
}

// verify checks every requested store and reports all broken ones
func verify(w io.Writer, set *mapping.Set, kinds []mapping.Kind) error {
	var errs []error
	for _, kind := range kinds {
		store := set.Store(kind)
		if err := store.Verify(); err != nil {
			_, _ = fmt.Fprintf(w, "%-12s FAIL %v\n", kind, err)
			errs = append(errs, err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%-12s ok   %d entries\n", kind, store.Len())
	}
	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("mapping").
			Category(errors.CategoryMapping).
			Context("operation", "verify").
			Build()
	}
	return nil
}

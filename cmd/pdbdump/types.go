package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/skdltmxn/pdb-go/pdb"
	"github.com/spf13/cobra"
)

var (
	typesKind  string
	typesLimit int
)

var typesCmd = &cobra.Command{
	Use:   "types <pdb-file>",
	Short: "List types in the PDB file",
	Long: `List the types captured in the emitted document: user types
(struct/union), enums, and base types.

Use --kind to filter (struct, union, enum, base).`,
	Args: cobra.ExactArgs(1),
	RunE: runTypes,
}

func init() {
	typesCmd.Flags().StringVarP(&typesKind, "kind", "k", "", "filter by type kind (struct, union, enum, base)")
	typesCmd.Flags().IntVarP(&typesLimit, "limit", "n", 0, "limit number of types shown (0 = unlimited)")
}

type typeRow struct {
	kind, name, size string
}

func runTypes(cmd *cobra.Command, args []string) error {
	pdbPath := args[0]

	f, err := pdb.Open(pdbPath)
	if err != nil {
		return fmt.Errorf("failed to open PDB: %w", err)
	}
	defer f.Close()

	doc, err := f.Emit()
	if err != nil {
		return fmt.Errorf("failed to decode PDB: %w", err)
	}

	kindFilter := strings.ToLower(typesKind)

	var rows []typeRow
	if kindFilter == "" || kindFilter == "struct" || kindFilter == "union" {
		for name, ut := range doc.UserTypes {
			if kindFilter != "" && kindFilter != ut.Kind {
				continue
			}
			rows = append(rows, typeRow{kind: ut.Kind, name: name, size: fmt.Sprintf("%d", ut.Size)})
		}
	}
	if kindFilter == "" || kindFilter == "enum" {
		for name, en := range doc.Enums {
			rows = append(rows, typeRow{kind: "enum", name: name, size: fmt.Sprintf("%d", en.Size)})
		}
	}
	if kindFilter == "" || kindFilter == "base" {
		for name, bt := range doc.BaseTypes {
			rows = append(rows, typeRow{kind: "base:" + bt.Kind, name: name, size: fmt.Sprintf("%d", bt.Size)})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].kind != rows[j].kind {
			return rows[i].kind < rows[j].kind
		}
		return rows[i].name < rows[j].name
	})

	fmt.Fprintf(output, "%-12s %-8s %s\n", "KIND", "SIZE", "NAME")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 80))

	count := 0
	for _, row := range rows {
		fmt.Fprintf(output, "%-12s %-8s %s\n", row.kind, row.size, row.name)
		count++
		if typesLimit > 0 && count >= typesLimit {
			break
		}
	}

	fmt.Fprintf(output, "\nTotal: %d types\n", count)
	return nil
}

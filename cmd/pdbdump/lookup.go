package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skdltmxn/pdb-go/pdb"
	"github.com/spf13/cobra"
)

var lookupShowRVA bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <pdb-file> <query>",
	Short: "Look up symbols, types, or members by name or address",
	Long: `Look up symbols, types, or members in a PDB file.

Query can be:
  - Symbol/member name: lookup file.pdb myFunction
    (searches both symbols and struct/union fields)
  - Qualified field: lookup file.pdb MyStruct::m_value
    (searches a specific struct/union field)
  - Address: lookup file.pdb 0x1234
    (searches for symbols at that offset)
  - Type name: lookup file.pdb type:MyStruct
    (looks up a user type, enum, or base type by name)`,
	Args: cobra.ExactArgs(2),
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().BoolVarP(&lookupShowRVA, "rva", "r", false, "show RVA (Relative Virtual Address)")
}

func runLookup(cmd *cobra.Command, args []string) error {
	pdbPath := args[0]
	query := args[1]

	f, err := pdb.Open(pdbPath)
	if err != nil {
		return fmt.Errorf("failed to open PDB: %w", err)
	}
	defer f.Close()

	if strings.HasPrefix(query, "type:") {
		return lookupType(f, strings.TrimPrefix(query, "type:"))
	}

	if strings.HasPrefix(query, "0x") || strings.HasPrefix(query, "0X") {
		return lookupAddress(f, query)
	}

	return lookupName(f, query)
}

func lookupName(f *pdb.File, name string) error {
	symbols, err := f.Symbols()
	if err != nil {
		return fmt.Errorf("failed to get symbols: %w", err)
	}

	doc, err := f.Emit()
	if err != nil {
		return fmt.Errorf("failed to decode PDB: %w", err)
	}

	var sections *pdb.SectionHeaders
	if lookupShowRVA {
		sections, _ = f.Sections()
	}

	symbolCount := 0
	fieldCount := 0

	owner, field, isQualified := strings.Cut(name, "::")

	if !isQualified {
		for sym := range symbols.ByName(name) {
			printSymbolDetail(sym, sections)
			symbolCount++
		}
		if symbolCount == 0 {
			for sym := range symbols.All() {
				if strings.Contains(sym.Name(), name) {
					printSymbolDetail(sym, sections)
					symbolCount++
				}
			}
		}

		for typeName, ut := range doc.UserTypes {
			if fd, ok := ut.Fields[name]; ok {
				printFieldDetail(typeName, name, fd)
				fieldCount++
			}
		}
	} else if ut, ok := doc.UserTypes[owner]; ok {
		if fd, ok := ut.Fields[field]; ok {
			printFieldDetail(owner, field, fd)
			fieldCount++
		}
	}

	totalFound := symbolCount + fieldCount
	switch {
	case totalFound == 0:
		fmt.Fprintf(output, "No results found matching '%s'\n", name)
	case symbolCount > 0 && fieldCount > 0:
		fmt.Fprintf(output, "\nFound %d symbol(s) and %d field(s)\n", symbolCount, fieldCount)
	case symbolCount > 0:
		fmt.Fprintf(output, "\nFound %d symbol(s)\n", symbolCount)
	default:
		fmt.Fprintf(output, "\nFound %d field(s)\n", fieldCount)
	}

	return nil
}

func lookupAddress(f *pdb.File, addrStr string) error {
	addr, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(addrStr, "0x"), "0X"), 16, 32)
	if err != nil {
		return fmt.Errorf("invalid address: %s", addrStr)
	}

	symbols, err := f.Symbols()
	if err != nil {
		return fmt.Errorf("failed to get symbols: %w", err)
	}

	var sections *pdb.SectionHeaders
	if lookupShowRVA {
		sections, _ = f.Sections()
	}

	found := 0
	for sym := range symbols.Public() {
		if sym.Offset() == uint32(addr) {
			printSymbolDetail(sym, sections)
			found++
		}
	}

	if found == 0 {
		fmt.Fprintf(output, "No symbols found at address 0x%08X\n", addr)
	}

	return nil
}

func lookupType(f *pdb.File, name string) error {
	doc, err := f.Emit()
	if err != nil {
		return fmt.Errorf("failed to decode PDB: %w", err)
	}

	if ut, ok := doc.UserTypes[name]; ok {
		printUserTypeDetail(name, ut)
		return nil
	}
	if en, ok := doc.Enums[name]; ok {
		printEnumDetail(name, en)
		return nil
	}
	if bt, ok := doc.BaseTypes[name]; ok {
		printBaseTypeDetail(name, bt)
		return nil
	}

	return fmt.Errorf("type not found: %s", name)
}

func printSymbolDetail(sym pdb.Symbol, sections *pdb.SectionHeaders) {
	fmt.Fprintf(output, "Symbol:\n")
	fmt.Fprintf(output, "  Name: %s\n", sym.Name())
	fmt.Fprintf(output, "  Kind: %s\n", sym.Kind().String())
	if sym.Section() != 0 || sym.Offset() != 0 {
		fmt.Fprintf(output, "  Section: 0x%04X\n", sym.Section())
		fmt.Fprintf(output, "  Offset: 0x%08X\n", sym.Offset())
		if sections != nil {
			rva := sections.ToRVA(sym.Section(), sym.Offset())
			fmt.Fprintf(output, "  RVA: 0x%08X\n", rva)
		}
	}

	switch s := sym.(type) {
	case *pdb.PublicSymbol:
		fmt.Fprintf(output, "  IsCode: %v\n", s.IsCode())
		fmt.Fprintf(output, "  IsFunction: %v\n", s.IsFunction())
	case *pdb.FunctionSymbol:
		fmt.Fprintf(output, "  Length: %d\n", s.Length())
		fmt.Fprintf(output, "  TypeIndex: 0x%04X\n", s.TypeIndex())
	case *pdb.DataSymbol:
		fmt.Fprintf(output, "  TypeIndex: 0x%04X\n", s.TypeIndex())
	}

	fmt.Fprintln(output)
}

func printUserTypeDetail(name string, ut *pdb.UserTypeDoc) {
	fmt.Fprintf(output, "Type:\n")
	fmt.Fprintf(output, "  Name: %s\n", name)
	fmt.Fprintf(output, "  Kind: %s\n", ut.Kind)
	fmt.Fprintf(output, "  Size: %d\n", ut.Size)
	fmt.Fprintf(output, "  Fields: %d\n", len(ut.Fields))
	fmt.Fprintln(output)
}

func printEnumDetail(name string, en *pdb.EnumDoc) {
	fmt.Fprintf(output, "Type:\n")
	fmt.Fprintf(output, "  Name: %s\n", name)
	fmt.Fprintf(output, "  Kind: enum\n")
	fmt.Fprintf(output, "  Base: %s\n", en.Base)
	fmt.Fprintf(output, "  Size: %d\n", en.Size)
	fmt.Fprintf(output, "  Constants: %d\n", len(en.Constants))
	fmt.Fprintln(output)
}

func printBaseTypeDetail(name string, bt *pdb.BaseTypeDoc) {
	fmt.Fprintf(output, "Type:\n")
	fmt.Fprintf(output, "  Name: %s\n", name)
	fmt.Fprintf(output, "  Kind: %s\n", bt.Kind)
	fmt.Fprintf(output, "  Size: %d\n", bt.Size)
	fmt.Fprintf(output, "  Signed: %v\n", bt.Signed)
	fmt.Fprintf(output, "  Endian: %s\n", bt.Endian)
	fmt.Fprintln(output)
}

func printFieldDetail(owner, name string, fd *pdb.FieldDoc) {
	fmt.Fprintf(output, "Field:\n")
	fmt.Fprintf(output, "  Name: %s::%s\n", owner, name)
	fmt.Fprintf(output, "  Offset: 0x%08X (in %s)\n", fd.Offset, owner)
	if fd.Type != nil {
		fmt.Fprintf(output, "  Type: %s\n", fd.Type.Kind)
		if fd.Type.Name != "" {
			fmt.Fprintf(output, "  TypeName: %s\n", fd.Type.Name)
		}
	}
	fmt.Fprintln(output)
}

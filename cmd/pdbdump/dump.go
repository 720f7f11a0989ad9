package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/skdltmxn/pdb-go/msf"
	"github.com/skdltmxn/pdb-go/pdb"
	"github.com/spf13/cobra"
)

const defaultDumpOutput = "out.json"

var (
	dumpFilename string
	dumpFormat   string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Decode a PDB's types and public symbols to JSON",
	Long: `Decode a PDB's types and public symbols into the
{user_types, enums, base_types, symbols} document and write it as
JSON, matching the object the original mspdb.py driver produced.

Supported --format values:
  - json: the {user_types, enums, base_types, symbols} document (default)
  - text: a human-readable dump of info/symbols/types`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFilename, "filename", "f", "", "path to the PDB file (required)")
	dumpCmd.Flags().StringVar(&dumpFormat, "format", "json", "output format (json, text)")
	dumpCmd.MarkFlagRequired("filename")
}

func runDump(cmd *cobra.Command, args []string) error {
	path, err := msf.ResolvePath(dumpFilename)
	if err != nil {
		return err
	}

	f, err := pdb.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open PDB: %w", err)
	}
	defer f.Close()

	dest, err := dumpDestination()
	if err != nil {
		return err
	}
	if dest != os.Stdout {
		defer dest.Close()
	}

	switch dumpFormat {
	case "json":
		return dumpDocumentJSON(f, dest)
	case "text":
		return dumpText(f, path, dest)
	default:
		return fmt.Errorf("unknown format: %s", dumpFormat)
	}
}

// dumpDestination honors the root --output flag if the caller set one,
// otherwise defaults to out.json -- the spec's equivalent of mspdb.py's
// literal "file.out" default.
func dumpDestination() (*os.File, error) {
	if outputFile != "" {
		return os.Create(outputFile)
	}
	return os.Create(defaultDumpOutput)
}

func dumpDocumentJSON(f *pdb.File, dest *os.File) error {
	doc, err := f.Emit()
	if err != nil {
		return fmt.Errorf("failed to decode PDB: %w", err)
	}

	encoder := json.NewEncoder(dest)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func dumpText(f *pdb.File, pdbPath string, dest *os.File) error {
	prevOutput := output
	output = dest
	defer func() { output = prevOutput }()

	fmt.Fprintln(output, "=== PDB Information ===")
	if err := runInfo(nil, []string{pdbPath}); err != nil {
		return err
	}

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Public Symbols ===")
	symbolsAll = false
	symbolsLimit = 0
	if err := runSymbols(nil, []string{pdbPath}); err != nil {
		return err
	}

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Types ===")
	typesLimit = 0
	return runTypes(nil, []string{pdbPath})
}

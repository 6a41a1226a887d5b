package app

import (
	"fmt"
	"os"

	"gomemd/hexdump"
	"gomemd/search"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <pid> <module> <aob>",
	Short: "Scan a module for an array of bytes, e.g. \"48 8b ?? 05\"",
	Args:  cobra.ExactArgs(3),
	RunE:  scan,
}

var pathsCmd = &cobra.Command{
	Use:   "paths <pid> <address> <hex>",
	Short: "Find pointer paths from an address to a byte sequence",
	Args:  cobra.ExactArgs(3),
	RunE:  paths,
}

func init() {
	addDTBFlag(scanCmd)
	addSnapshotFlag(scanCmd)
	scanCmd.Flags().Int("chunk-size", 1<<20, "Number of bytes read per driver call")
	scanCmd.Flags().Bool("context", false, "Hexdump the memory around every match")

	addDTBFlag(pathsCmd)
	addSnapshotFlag(pathsCmd)
	pathsCmd.Flags().Int("depth", 3, "Maximum pointer depth")
	pathsCmd.Flags().Uint("struct-size", 256, "Number of bytes inspected per structure")
	pathsCmd.Flags().Uint("alignment", 4, "Alignment of candidate values")
	pathsCmd.Flags().Bool("modules-only", false, "Only follow pointers into loaded modules")
}

func scan(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	aob, err := search.ParseAOB(args[2])
	if err != nil {
		return err
	}
	dtt, err := directoryTable(cmd)
	if err != nil {
		return err
	}
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	showContext, _ := cmd.Flags().GetBool("context")

	src, err := openSource(cmd)
	if err != nil {
		return err
	}
	defer src.Close()

	module, err := src.module(pid, dtt, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Scanning %s (0x%X, 0x%X bytes) for %s\n", module.Name(), module.BaseAddress, module.ModuleSize, aob)

	target := search.Target{ProcessID: pid, DirectoryTable: dtt}
	matches, err := search.Scan(src, target, module.BaseAddress, module.ModuleSize, aob, chunkSize)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d matches\n", len(matches))
	for _, match := range matches {
		fmt.Printf("0x%X %s+0x%X\n", match, module.Name(), match-module.BaseAddress)
		if !showContext {
			continue
		}

		// 16 bytes before and after the match
		start := match - 16
		data := make([]byte, 32+len(aob.Pattern))
		if err := src.Read(pid, dtt, start, data); err == nil {
			hexdump.DumpToWriter(os.Stdout, data, hexdump.Options{BytesPerLine: 16, GroupSize: 1, ShowASCII: true, StartAddress: start})
		}
	}

	return nil
}

func paths(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	base, err := parseUint("address", args[1])
	if err != nil {
		return err
	}
	want, err := parseHexBytes(args[2])
	if err != nil {
		return err
	}
	dtt, err := directoryTable(cmd)
	if err != nil {
		return err
	}
	depth, _ := cmd.Flags().GetInt("depth")
	structSize, _ := cmd.Flags().GetUint("struct-size")
	alignment, _ := cmd.Flags().GetUint("alignment")
	modulesOnly, _ := cmd.Flags().GetBool("modules-only")

	src, err := openSource(cmd)
	if err != nil {
		return err
	}
	defer src.Close()

	options := []search.Option{
		search.WithSearchForBytes(want),
		search.WithMaxDepth(depth),
		search.WithMaxStructSize(structSize),
		search.WithMinAlignment(alignment),
	}
	if modulesOnly {
		modules, err := src.modules(pid, dtt)
		if err != nil {
			return err
		}
		options = append(options, search.WithPointerFilter(func(ptr uint64) bool {
			_, ok := hexdump.Symbolize(ptr, modules)
			return ok
		}))
	}

	results, err := search.Search(src, search.Target{ProcessID: pid, DirectoryTable: dtt}, base, options...)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d paths from 0x%X\n", len(results), base)
	for _, result := range results {
		fmt.Println(result)
	}

	return nil
}

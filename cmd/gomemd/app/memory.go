package app

import (
	"fmt"
	"os"

	"gomemd/hexdump"

	"github.com/spf13/cobra"
)

const maxReadSize = 16 << 20

var readCmd = &cobra.Command{
	Use:   "read <pid> <address> <length>",
	Short: "Read and hexdump memory of a process",
	Args:  cobra.ExactArgs(3),
	RunE:  readMemory,
}

var writeCmd = &cobra.Command{
	Use:   "write <pid> <address> <hex>",
	Short: "Write bytes to memory of a process",
	Args:  cobra.ExactArgs(3),
	RunE:  writeMemory,
}

func init() {
	addDTBFlag(readCmd)
	readCmd.Flags().Bool("symbols", false, "Annotate values pointing into loaded modules")
	readCmd.Flags().Bool("raw", false, "Write the raw bytes to stdout instead of a hexdump")

	addDTBFlag(writeCmd)
}

func readMemory(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	address, err := parseUint("address", args[1])
	if err != nil {
		return err
	}
	length, err := parseUint("length", args[2])
	if err != nil {
		return err
	}
	if length > maxReadSize {
		return fmt.Errorf("length %d exceeds the maximum of %d bytes", length, maxReadSize)
	}
	dtt, err := directoryTable(cmd)
	if err != nil {
		return err
	}
	symbols, _ := cmd.Flags().GetBool("symbols")
	raw, _ := cmd.Flags().GetBool("raw")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	buf := make([]byte, length)
	if err := s.iface.Read(pid, dtt, address, buf); err != nil {
		return err
	}

	if raw {
		_, err = os.Stdout.Write(buf)
		return err
	}

	options := hexdump.DefaultOptions()
	options.StartAddress = address
	if symbols {
		options.Modules, err = loadedModules(s.iface, pid, dtt)
		if err != nil {
			return err
		}
	}
	hexdump.DumpToWriter(os.Stdout, buf, options)

	return nil
}

func writeMemory(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	address, err := parseUint("address", args[1])
	if err != nil {
		return err
	}
	data, err := parseHexBytes(args[2])
	if err != nil {
		return err
	}
	dtt, err := directoryTable(cmd)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.iface.Write(pid, dtt, address, data); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to 0x%X in process %d\n", len(data), address, pid)

	return nil
}

//go:build linux

package backend_linux

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gomemd/protocol"
)

// listProcesses walks the PID directories of procRoot. Processes that exit
// during the walk are skipped.
func listProcesses(procRoot string) ([]protocol.ProcessInfo, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", procRoot, err)
	}

	var processes []protocol.ProcessInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pid, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil || pid == 0 {
			continue // not a PID dir
		}

		comm, err := os.ReadFile(filepath.Join(procRoot, entry.Name(), "comm"))
		if err != nil {
			continue
		}

		var info protocol.ProcessInfo
		info.ProcessID = protocol.ProcessID(pid)
		info.SetImageBaseName(strings.TrimRight(string(comm), "\n\r\t "))
		processes = append(processes, info)
	}

	return processes, nil
}

// readMaps reads /proc/<pid>/maps. found is false when the process does not exist.
func readMaps(procRoot string, pid protocol.ProcessID) (regions []MemoryRegion, found bool, err error) {
	file, err := os.Open(filepath.Join(procRoot, strconv.FormatUint(uint64(pid), 10), "maps"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, true, err
	}
	defer file.Close()

	regions, err = ParseMaps(file)
	return regions, true, err
}

func procExists(procRoot string, pid protocol.ProcessID) bool {
	_, err := os.Stat(filepath.Join(procRoot, strconv.FormatUint(uint64(pid), 10)))
	return err == nil
}

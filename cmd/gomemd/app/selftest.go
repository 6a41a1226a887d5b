package app

import (
	"bytes"
	"fmt"
	"os"
	"unsafe"

	"gomemd/driver"
	"gomemd/hexdump"
	"gomemd/pod"
	"gomemd/protocol"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Exercise every supported driver feature against this process",
	Args:  cobra.NoArgs,
	RunE:  selftest,
}

func init() {
	selftestCmd.Flags().BoolP("verbose", "v", false, "Print the structure read back by the typed read step")
}

// selftestValue is read and written through the driver.
var selftestValue = [8]byte{0x67, 0x6f, 0x6d, 0x65, 0x6d, 0x64, 0x21, 0x00}

// selftestSample is read back as a whole by the typed read step.
type selftestSample struct {
	Magic    [8]byte                `pod:"cstr"`
	Features protocol.DriverFeature `pod:"flags"`
	Self     uint64                 `pod:"ptr"`
	Counter  uint32
	Ratio    float32
}

var sample = selftestSample{Magic: [8]byte{'s', 'a', 'm', 'p', 'l', 'e'}, Counter: 1337, Ratio: 0.5}

type selftestEnv struct {
	iface  *driver.Interface
	pid    protocol.ProcessID
	sample *selftestSample
}

type step struct {
	name    string
	feature protocol.DriverFeature
	run     func(env *selftestEnv) (string, error)
}

var selftestSteps = []step{
	{"memory read", protocol.FeatureMemoryRead, selftestRead},
	{"memory write", protocol.FeatureMemoryWrite, selftestWrite},
	{"typed read", protocol.FeatureMemoryRead, selftestTypedRead},
	{"process list", protocol.FeatureProcessList, selftestProcessList},
	{"module list", protocol.FeatureProcessModules, selftestModuleList},
}

func selftest(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	verbose, _ := cmd.Flags().GetBool("verbose")
	env := &selftestEnv{iface: s.iface, pid: protocol.ProcessID(os.Getpid())}
	features := s.iface.DriverFeatures()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Step", "Result", "Detail"})
	t.SetStyle(table.StyleLight)

	failed := 0
	for _, step := range selftestSteps {
		if !features.Has(step.feature) {
			t.AppendRow(table.Row{step.name, "skipped", step.feature.String() + " not supported"})
			continue
		}

		detail, err := step.run(env)
		if err != nil {
			failed++
			t.AppendRow(table.Row{step.name, "failed", err.Error()})
			continue
		}
		t.AppendRow(table.Row{step.name, "ok", detail})
	}
	t.Render()

	if verbose && env.sample != nil {
		var modules []protocol.ProcessModuleInfo
		if features.Has(protocol.FeatureProcessModules) {
			modules, _ = loadedModules(env.iface, env.pid, nil)
		}
		fmt.Println()
		err := pod.Fprint(os.Stdout, env.sample, func(addr uint64) (string, bool) {
			return hexdump.Symbolize(addr, modules)
		})
		if err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(selftestSteps))
	}
	return nil
}

func selftestAddress() uint64 {
	return uint64(uintptr(unsafe.Pointer(&selftestValue[0])))
}

func selftestRead(env *selftestEnv) (string, error) {
	buf := make([]byte, len(selftestValue))
	if err := env.iface.Read(env.pid, nil, selftestAddress(), buf); err != nil {
		return "", err
	}
	if !bytes.Equal(buf, selftestValue[:]) {
		return "", fmt.Errorf("read %x, expected %x", buf, selftestValue)
	}
	return fmt.Sprintf("%d bytes at 0x%X", len(buf), selftestAddress()), nil
}

func selftestWrite(env *selftestEnv) (string, error) {
	original := selftestValue
	defer func() { selftestValue = original }()

	want := []byte{0xde, 0xad, 0xbe, 0xef, 0xca, 0xfe, 0xba, 0xbe}
	if err := env.iface.Write(env.pid, nil, selftestAddress(), want); err != nil {
		return "", err
	}
	if !bytes.Equal(selftestValue[:], want) {
		return "", fmt.Errorf("memory holds %x after writing %x", selftestValue, want)
	}
	return fmt.Sprintf("%d bytes at 0x%X", len(want), selftestAddress()), nil
}

func selftestTypedRead(env *selftestEnv) (string, error) {
	address := uint64(uintptr(unsafe.Pointer(&sample)))
	sample.Features = env.iface.DriverFeatures()
	sample.Self = address

	got, err := driver.ReadT[selftestSample](env.iface, env.pid, nil, address)
	if err != nil {
		return "", err
	}
	if got != sample {
		return "", fmt.Errorf("read %+v, expected %+v", got, sample)
	}
	env.sample = &got
	return fmt.Sprintf("%d byte structure at 0x%X", pod.SizeOf[selftestSample](), address), nil
}

func selftestProcessList(env *selftestEnv) (string, error) {
	pid := env.pid
	total, found := 0, false
	err := env.iface.ProcessList(func(info *protocol.ProcessInfo) bool {
		total++
		if info.ProcessID == pid {
			found = true
		}
		return true
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("own process %d not among %d processes", pid, total)
	}
	return fmt.Sprintf("%d processes", total), nil
}

func selftestModuleList(env *selftestEnv) (string, error) {
	pid := env.pid
	modules, err := loadedModules(env.iface, pid, nil)
	if err != nil {
		return "", err
	}
	if len(modules) == 0 {
		return "", fmt.Errorf("no modules reported for process %d", pid)
	}
	return fmt.Sprintf("%d modules, first %s", len(modules), modules[0].Name()), nil
}

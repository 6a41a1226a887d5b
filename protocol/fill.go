package protocol

// FillProcesses copies processes into the command buffer, bounded by its length,
// and reports the total count.
func (c *DriverCommandProcessList) FillProcesses(processes []ProcessInfo) {
	copy(c.Buffer, processes)
	c.ProcessCount = len(processes)
}

// FillModules copies modules into the command buffer, bounded by its length,
// and reports the total count.
func (c *DriverCommandProcessModules) FillModules(modules []ProcessModuleInfo) {
	copy(c.Buffer, modules)
	c.ModuleCount = len(modules)
}

// Complete records the outcome of a transfer which copied n of len(Buffer) bytes.
func (c *DriverCommandMemoryRead) Complete(n int) {
	c.Result = transferResult(n, len(c.Buffer))
}

// Complete records the outcome of a transfer which copied n of len(Buffer) bytes.
func (c *DriverCommandMemoryWrite) Complete(n int) {
	c.Result = transferResult(n, len(c.Buffer))
}

func transferResult(n, want int) MemoryAccessResult {
	if n >= want {
		return MemoryAccessResult{Status: MemoryAccessSuccess}
	}
	return MemoryAccessResult{Status: MemoryAccessPartialSuccess, BytesCopied: n}
}

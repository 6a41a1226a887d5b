// Package backend_linux is a user-mode backend for Linux. Processes come from
// /proc, modules from /proc/<pid>/maps and memory is transferred with
// process_vm_readv and process_vm_writev.
//
// Paging roots are not visible from user mode: processes report a directory
// table base of zero and explicit directory tables are not supported. Reading
// another user's processes needs CAP_SYS_PTRACE.
//
// The backend registers itself as "linux" on Linux builds only.
package backend_linux

// Package backend_windows is a user-mode backend for Windows. Processes and
// modules come from toolhelp snapshots and memory is transferred with
// ReadProcessMemory and WriteProcessMemory.
//
// Like the Linux backend it cannot see paging roots, so processes report a
// directory table base of zero and explicit directory tables are refused.
//
// The backend registers itself as "windows" on Windows builds only.
package backend_windows

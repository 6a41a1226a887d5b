// Package translation turns a directory table selector into the paging context
// used for one memory or module operation.
//
// Nothing here is cached. A selector is validated and copied for every call, and
// DEFAULT is resolved by the backend at the moment the command executes, so a
// process that exits and is replaced under the same ID is always translated with
// the new process's root.
package translation

import (
	"gomemd/protocol"
	"gomemd/status"
)

// Default selects the paging root the system knows for the target process.
func Default() protocol.DirectoryTableType {
	return protocol.DirectoryTableType{Kind: protocol.DirectoryTableDefault}
}

// Explicit selects base as paging root, bypassing per-process resolution.
func Explicit(base uint64) protocol.DirectoryTableType {
	return protocol.DirectoryTableType{
		Kind:               protocol.DirectoryTableExplicit,
		DirectoryTableBase: base,
	}
}

// Prepare validates dtt against the session features and returns the value to
// place into a command. The result is a copy; dtt is not retained.
func Prepare(op string, dtt *protocol.DirectoryTableType, features protocol.DriverFeature) (protocol.DirectoryTableType, error) {
	if dtt == nil {
		return Default(), nil
	}

	switch dtt.Kind {
	case protocol.DirectoryTableDefault:
		return Default(), nil

	case protocol.DirectoryTableExplicit:
		if !features.Has(protocol.FeatureDTTExplicit) {
			return protocol.DirectoryTableType{}, status.Newf(op, status.Unsupported, "explicit directory table base not supported")
		}
		return Explicit(dtt.DirectoryTableBase), nil

	default:
		return protocol.DirectoryTableType{}, status.Newf(op, status.GeneralFailure, "unknown directory table kind %d", dtt.Kind)
	}
}

// RootLookup resolves the current paging root of a process.
type RootLookup func(pid protocol.ProcessID) (uint64, bool, error)

// Resolve returns the concrete paging root dtt stands for right now.
// Explicit selectors resolve to their own value. DEFAULT calls lookup, every time.
func Resolve(op string, pid protocol.ProcessID, dtt protocol.DirectoryTableType, lookup RootLookup) (uint64, error) {
	switch dtt.Kind {
	case protocol.DirectoryTableExplicit:
		return dtt.DirectoryTableBase, nil

	case protocol.DirectoryTableDefault:
		root, found, err := lookup(pid)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, status.Newf(op, status.InvalidProcess, "process %d not found", pid)
		}
		return root, nil

	default:
		return 0, status.Newf(op, status.GeneralFailure, "unknown directory table kind %d", dtt.Kind)
	}
}

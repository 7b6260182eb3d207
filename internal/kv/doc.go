// Package kv provides the persistent key-value stores behind the plugin
// host's storage capability.
//
// Values are opaque bytes; the host context stores JSON documents in them.
// Four backends are available:
//
//   - memory:  process-local map, lost on exit
//   - file:    a single JSON document on disk (gjson/sjson)
//   - sqlite:  a kv table in a SQLite database (modernc.org/sqlite)
//   - leveldb: a LevelDB directory (goleveldb)
//
// Open selects a backend by name:
//
//	store, err := kv.Open(kv.Options{Backend: "sqlite", Path: "plughost.db"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package kv

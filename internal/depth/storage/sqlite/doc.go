// Package sqlite persists depth sessions, per-frame statistics and voxel
// grid snapshots in a SQLite database.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary. Store implements depth.SnapshotStore so the core package never
// imports database code.
package sqlite

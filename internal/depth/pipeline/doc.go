// Package pipeline runs the per-frame loop for one depth session: acquire a
// frame, build its mesh, accumulate voxels, then publish statistics, persist
// snapshots and refine the gravity calibration.
//
// This package is the composition root: it imports depth, monitor and
// storage, but none of those packages import pipeline/.
package pipeline

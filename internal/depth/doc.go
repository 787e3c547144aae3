// Package depth owns the depth-to-geometry core: projecting a structured
// camera-space point cloud into world space, filtering it against a bounding
// box, triangulating it into flat vertex/index/normal buffers, and
// accumulating the accepted geometry into a decaying voxel grid.
//
// Key types: Frame, Arena, Mesh, VoxelGrid, Session.
//
// Dependency rule: this package never imports acquisition, storage, or web
// code. Point sources live in depth/source, persistence in
// depth/storage/sqlite, and the per-frame loop in depth/pipeline.
//
// All operations here are synchronous and single-threaded. A Session and its
// Arena are owned by exactly one goroutine.
package depth

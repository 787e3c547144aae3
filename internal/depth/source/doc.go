// Package source provides depth.PointSource implementations and the pieces
// they share: pinhole deprojection of raw depth images, a synthetic camera
// that renders a floor and a sphere, a channel-fed source for replay and
// tests, and a registry that opens sources by device serial.
//
// Sources reuse their frame buffers: a returned *depth.Frame is only valid
// until the next call into the same source.
package source

// Package monitor exposes a running depth pipeline over HTTP: rolling frame
// statistics, JSON status, echarts debug pages for frame throughput and voxel
// slices, and PNG time series of voxel occupancy rendered with gonum/plot.
package monitor

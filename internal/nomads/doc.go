// Package nomads plans downloads from the NOMADS GFS forecast archive.
//
// A forecast cycle publishes one GRIB2 file per forecast step, alongside a
// plain-text ".idx" sidecar. Which steps exist depends on the spatial
// resolution: the 0.25 degree grid is hourly out to 120 hours, then
// 3-hourly to 240 and 12-hourly to 384; the coarser grids start 3-hourly.
//
// NewPlan builds the ordered list of step URLs for a cycle, after applying
// the optional minimum-step and horizon filters. The schedule is generated
// fresh on every call; plans are immutable once built.
package nomads

// Package preflight provides readiness checks for the filesystem and external
// services that winecellar depends on.
//
// These checks run in two contexts:
//   - Capture import calls CheckFreeSpace before copying a photo so a full
//     disk is reported as insufficient storage instead of a half-written file.
//   - The CLI "winecellar status" command and daemon startup call RunAll to
//     display data directory, disk, OCR and content service health.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight

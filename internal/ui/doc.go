// Package ui implements the progress dashboard shown by stage commands run with --tui.
//
// The dashboard is a bubbletea program that only consumes [tasks.ProgressUpdate] values; it never
// touches rows. It shows:
//   - a progress bar over the rows the stage has to work on
//   - running status counts (found, not_found, success, failed_no_match, ...)
//   - a scrollable list of recent row events
//
// Progress updates arrive through a channel that the stage closes when it returns. Pressing q once
// asks the stage to stop after the row in flight; pressing it again cancels that row. The dashboard
// stays up until the stage has saved its checkpoint, then exits.
package ui

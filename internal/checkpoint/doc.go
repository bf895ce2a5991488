// Package checkpoint reads and writes the per-stage CSV checkpoint files.
//
// A checkpoint is the library export plus the columns owned by one stage. Column names are matched
// case-insensitively after normalization ("Track Duration (ms)" == "track_duration_ms"), unknown
// columns are carried through in their original order, and every save replaces the file atomically.
//
// Key types:
//   - [Store] : an opened checkpoint bound to a [Codec]
//   - [LookupCodec], [MasterCodec], [DownloadCodec] : the three stage row formats
//
// Values written by the older scraping scripts (yt_url, status, downloaded, ...) are recognized on
// read so those files can be resumed; they are replaced by the current columns on the next save.
package checkpoint

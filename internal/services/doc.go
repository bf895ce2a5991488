// Package services defines the external capabilities of the pipeline and implements them.
//
// # Link Providers
//
// [LinkProvider] is implemented twice, and the lookup runner treats both alike:
//   - [SongstatsService] reads the YouTube link from the Songstats page of the track's ISRC.
//     Tracks without an ISRC are resolved first through an [ISRCResolver].
//   - [DiscogsService] finds the track's album (master or release) and matches its videos
//     to the track title by token containment. Album results are cached for the run.
//
// # Spotify
//
// [SpotifyService] is the [ISRCResolver]. It uses the OAuth2 client-credentials flow, so no user
// login is involved; the [oauth2] client fetches and renews the app token.
//
// # Download Capability
//
// [YtDlpService] implements [Downloader] with yt-dlp (through go-ytdlp): probe a link, search by
// query, and fetch audio converted to the configured format. [ID3Tagger] writes the track's
// metadata and resized cover art, and [FileInspector] recognises files left by an earlier run.
//
// # Error Handling
//
// Services wrap the sentinels of the shared package so stages can classify failures:
//   - [shared.ErrAuthFailed] : rejected credentials (401/403), aborts a stage
//   - [shared.ErrTrackNotFound] : nothing usable for this track (404, unavailable video)
//   - [shared.ErrTransient] : rate limits (429), server errors, network failures
//   - [shared.ErrMissingCredentials] : a provider was created without its keys
//
// Every request is paced by a [rate.Limiter] per provider.
package services

// Package media acquires sitting recordings and extracts 16kHz mono WAV
// audio for speech recognition.
//
// Sources are tried in order: the official portal recording (direct file or
// HLS stream), then a YouTube fallback when the debate metadata carries one.
// HLS capture and audio extraction shell out to ffmpeg; the YouTube fallback
// shells out to yt-dlp.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
)

// ErrNoMediaSource means every candidate URL failed or none existed. This is
// a terminal condition: retrying will not make a recording appear.
var ErrNoMediaSource = errors.New("media: no media source available")

const (
	directTimeout  = 10 * time.Minute
	extractTimeout = 10 * time.Minute
	streamTimeout  = time.Hour
	probeTimeout   = 30 * time.Second

	userAgent = "HansardFlow Parliament Tracker/1.0"
)

// runFunc executes an external command and returns its combined output. It is
// a field so tests can run without ffmpeg and yt-dlp installed.
type runFunc func(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Downloader fetches debate recordings into a local media root, one
// directory per debate.
type Downloader struct {
	root       string
	httpClient *http.Client
	log        *slog.Logger
	run        runFunc

	ffmpeg  string
	ffprobe string
	ytdlp   string
}

// Option configures a [Downloader].
type Option func(*Downloader)

// WithHTTPClient replaces the default HTTP client used for direct downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.httpClient = c }
}

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Downloader) { d.log = log }
}

// WithRunner replaces the external-command runner. Used by tests.
func WithRunner(run runFunc) Option {
	return func(d *Downloader) { d.run = run }
}

// WithBinaries overrides the ffmpeg and yt-dlp binaries found on PATH. Empty
// strings keep the defaults. ffprobe is expected next to ffmpeg.
func WithBinaries(ffmpegPath, ytdlpPath string) Option {
	return func(d *Downloader) {
		if ffmpegPath != "" {
			d.ffmpeg = ffmpegPath
			if dir := filepath.Dir(ffmpegPath); dir != "." {
				d.ffprobe = filepath.Join(dir, "ffprobe")
			}
		}
		if ytdlpPath != "" {
			d.ytdlp = ytdlpPath
		}
	}
}

// NewDownloader creates a downloader storing media under root.
func NewDownloader(root string, opts ...Option) *Downloader {
	d := &Downloader{
		root:       root,
		httpClient: &http.Client{Timeout: directTimeout},
		log:        slog.Default(),
		run:        runCommand,
		ffmpeg:     "ffmpeg",
		ffprobe:    "ffprobe",
		ytdlp:      "yt-dlp",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AudioPath returns where a debate's extracted audio lives.
func (d *Downloader) AudioPath(debateID string) string {
	return filepath.Join(d.root, debateID, "audio.wav")
}

// Download acquires audio for a debate. Candidate URLs are the debate's
// primary video URL followed by any source URLs of type "video"; when all of
// those fail, a YouTube link from the debate metadata is tried via yt-dlp.
// Returns [ErrNoMediaSource] when nothing could be fetched.
func (d *Downloader) Download(ctx context.Context, debate *store.Debate, legislatureCode string) (*store.MediaAsset, error) {
	dir := filepath.Join(d.root, debate.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create media dir: %w", err)
	}
	outputPath := filepath.Join(dir, "audio.wav")

	for _, url := range candidateURLs(debate) {
		asset, err := d.downloadFromURL(ctx, url, outputPath)
		if err != nil {
			d.log.Warn("media download failed", "debate_id", debate.ID, "url", url, "error", err)
			continue
		}
		asset.DebateID = debate.ID
		asset.Language = inferLanguage(legislatureCode)
		return asset, nil
	}

	if ytURL := youtubeURL(debate); ytURL != "" {
		asset, err := d.downloadFromYouTube(ctx, ytURL, outputPath)
		if err != nil {
			d.log.Warn("youtube fallback failed", "debate_id", debate.ID, "url", ytURL, "error", err)
		} else {
			asset.DebateID = debate.ID
			asset.Language = inferLanguage(legislatureCode)
			return asset, nil
		}
	}

	return nil, fmt.Errorf("%w: debate %s", ErrNoMediaSource, debate.ID)
}

// candidateURLs lists the official recording URLs to try, primary video
// first.
func candidateURLs(debate *store.Debate) []string {
	var urls []string
	if debate.VideoURL != "" {
		urls = append(urls, debate.VideoURL)
	}
	for _, src := range debate.SourceURLs {
		if src.Type == "video" && src.URL != "" {
			urls = append(urls, src.URL)
		}
	}
	return urls
}

// youtubeURL returns a YouTube link attached to the debate, if any.
func youtubeURL(debate *store.Debate) string {
	if url, ok := debate.Metadata["youtube_url"].(string); ok && url != "" {
		return url
	}
	for _, src := range debate.SourceURLs {
		if strings.Contains(src.URL, "youtube.com") || strings.Contains(src.URL, "youtu.be") {
			return src.URL
		}
	}
	return ""
}

func (d *Downloader) downloadFromURL(ctx context.Context, url, outputPath string) (*store.MediaAsset, error) {
	if strings.Contains(url, ".m3u8") || strings.Contains(strings.ToLower(url), "manifest") {
		return d.downloadHLS(ctx, url, outputPath)
	}
	return d.downloadDirect(ctx, url, outputPath)
}

// downloadDirect fetches a media file over HTTP and extracts its audio
// track.
func (d *Downloader) downloadDirect(ctx context.Context, url, outputPath string) (*store.MediaAsset, error) {
	d.log.Info("direct media download", "url", url)

	tempPath := strings.TrimSuffix(outputPath, ".wav") + ".tmp"
	written, err := d.fetchToFile(ctx, url, tempPath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tempPath)
	d.log.Info("media downloaded", "url", url, "bytes", written)

	out, err := d.run(ctx, extractTimeout, d.ffmpeg,
		"-y", "-i", tempPath, "-vn",
		"-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		outputPath)
	if err != nil {
		return nil, fmt.Errorf("media: ffmpeg audio extraction: %w: %s", err, truncate(out, 500))
	}

	return d.buildAsset(ctx, "direct", url, outputPath)
}

// downloadHLS captures an HLS stream with ffmpeg, writing audio directly.
func (d *Downloader) downloadHLS(ctx context.Context, url, outputPath string) (*store.MediaAsset, error) {
	d.log.Info("hls media download", "url", url)

	out, err := d.run(ctx, streamTimeout, d.ffmpeg,
		"-y", "-i", url, "-vn",
		"-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		outputPath)
	if err != nil {
		return nil, fmt.Errorf("media: ffmpeg hls capture: %w: %s", err, truncate(out, 500))
	}

	return d.buildAsset(ctx, "hls", url, outputPath)
}

// downloadFromYouTube extracts audio via yt-dlp. yt-dlp may pick its own
// extension, so any stray .wav in the debate directory is renamed into
// place.
func (d *Downloader) downloadFromYouTube(ctx context.Context, url, outputPath string) (*store.MediaAsset, error) {
	d.log.Info("youtube media download", "url", url)

	template := strings.TrimSuffix(outputPath, ".wav") + ".%(ext)s"
	out, err := d.run(ctx, streamTimeout, d.ytdlp,
		"--extract-audio",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"--postprocessor-args", "ffmpeg:-ar 16000 -ac 1",
		"-o", template,
		url)
	if err != nil {
		return nil, fmt.Errorf("media: yt-dlp: %w: %s", err, truncate(out, 500))
	}

	if _, err := os.Stat(outputPath); err != nil {
		if err := adoptWAV(filepath.Dir(outputPath), outputPath); err != nil {
			return nil, fmt.Errorf("media: yt-dlp produced no output file: %w", err)
		}
	}

	return d.buildAsset(ctx, "yt-dlp", url, outputPath)
}

func (d *Downloader) fetchToFile(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("media: GET %s: status %d", url, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return written, nil
}

func (d *Downloader) buildAsset(ctx context.Context, source, url, outputPath string) (*store.MediaAsset, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("media: stat output: %w", err)
	}
	return &store.MediaAsset{
		MediaType:       "audio",
		Source:          source,
		OriginalURL:     url,
		LocalPath:       outputPath,
		FileSizeBytes:   info.Size(),
		DurationSeconds: d.probeDuration(ctx, outputPath),
		Status:          "ready",
	}, nil
}

// probeDuration asks ffprobe for the audio duration. Failures yield zero;
// duration is informational.
func (d *Downloader) probeDuration(ctx context.Context, path string) int {
	out, err := d.run(ctx, probeTimeout, d.ffprobe,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return int(seconds)
}

// adoptWAV renames the first .wav file found in dir to want.
func adoptWAV(dir, want string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		got := filepath.Join(dir, entry.Name())
		if got == want {
			return nil
		}
		return os.Rename(got, want)
	}
	return errors.New("no .wav file found")
}

// inferLanguage returns the expected proceedings language(s) for a
// legislature. Federal sittings carry both official-language floor feeds.
func inferLanguage(legislatureCode string) string {
	switch legislatureCode {
	case "CA":
		return "en+fr"
	case "QC":
		return "fr"
	default:
		return "en"
	}
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}

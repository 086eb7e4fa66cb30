package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/lipsync/internal/cache"
	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/audio"
	"github.com/dgnsrekt/lipsync/lipsync/emotion"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
	"github.com/dgnsrekt/lipsync/lipsync/viseme"
)

var (
	trackOut    string
	reportWidth uint
	noCache     bool

	analyzeCmd = &cobra.Command{
		Use:   "analyze FILE",
		Short: "Compute a face parameter track offline",
		Long: paragraph(fmt.Sprintf("\n%s a file frame by frame without playing it. Writes a JSON-lines track and prints a viseme report.",
			keyword("Analyze"))),
		Example: paragraph("lipsync analyze hello.wav\nlipsync analyze --out track.jsonl.zst hello.mp3"),
		Args:    cobra.ExactArgs(1),
		RunE:    runAnalyze,
	}
)

func init() {
	analyzeCmd.Flags().StringVarP(&trackOut, "out", "o", "", "write the track to this file (.zst to compress)")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "always recompute the track")
	analyzeCmd.Flags().UintVarP(&reportWidth, "width", "w", 0, "word-wrap the report at width (0 to detect)")
	analyzeCmd.Flags().IntVar(&sourceRate, "source-rate", lsync.DefaultSourceRate, "sample rate of raw PCM input")
	analyzeCmd.Flags().StringVarP(&emotionName, "emotion", "e", "", "emotion bias: neutral, happy, sad, angry, surprised, questioning")
	analyzeCmd.Flags().Float64Var(&intensity, "intensity", 1.0, "emotion intensity from 0 to 1")
}

// trackFrame is one line of the parameter track.
type trackFrame struct {
	T       float64         `json:"t"`
	Viseme  viseme.Viseme   `json:"viseme"`
	Emotion emotion.Emotion `json:"emotion"`
	lipsync.FaceParams
}

func runAnalyze(_ *cobra.Command, args []string) error {
	data, err := readSource(args[0])
	if err != nil {
		return err
	}
	seg, err := audio.Decode(data, sourceRate)
	if err != nil {
		return err
	}

	engine := lipsync.NewEngine(cfg.Engine, lipsync.WithSmoother(cfg.Smoother))
	if emotionName != "" {
		em, err := emotion.Resolve(emotionName)
		if err != nil {
			return err
		}
		engine.SetEmotion(em, intensity)
	}

	compute := func() []trackFrame {
		start := time.Now()
		track := analyzeTrack(engine, seg.For(engine.SampleRate()).Samples, cfg.Scheduler.ChunkMS)
		log.Debug("Analysis done", "frames", len(track), "took", time.Since(start))
		return track
	}
	var track []trackFrame
	if noCache {
		track = compute()
	} else if track, err = cachedTrack(data, compute); err != nil {
		return err
	}

	if trackOut != "" {
		n, err := saveTrack(trackOut, track)
		if err != nil {
			return err
		}
		log.Info("Track written", "file", trackOut, "size", humanize.Bytes(uint64(n)))
	}

	report := visemeReport(args[0], seg, track)
	return printReport(os.Stdout, report)
}

// analyzeTrack runs the engine over consecutive frames of frameMS each.
func analyzeTrack(engine *lipsync.Engine, samples []int16, frameMS int) []trackFrame {
	sr := engine.SampleRate()
	size := audio.SamplesFor(time.Duration(frameMS)*time.Millisecond, sr)
	frames := audio.Split(samples, size)
	track := make([]trackFrame, 0, len(frames))
	for i, f := range frames {
		fr := engine.AnalyzeSamples(f)
		track = append(track, trackFrame{
			T:          float64(i*size) / float64(sr),
			Viseme:     fr.Viseme,
			Emotion:    fr.Emotion,
			FaceParams: fr.Params,
		})
	}
	return track
}

// writeTrack encodes the track as JSON lines.
func writeTrack(w io.Writer, track []trackFrame) error {
	enc := json.NewEncoder(w)
	for _, f := range track {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// saveTrack writes the track to path, zstd compressed when path ends in
// .zst. It returns the number of bytes on disk.
func saveTrack(path string, track []trackFrame) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("unable to create track file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	cw := &countingWriter{w: f}
	if !strings.HasSuffix(path, ".zst") {
		if err := writeTrack(cw, track); err != nil {
			return 0, err
		}
		return cw.n, f.Close()
	}

	zw, err := zstd.NewWriter(cw)
	if err != nil {
		return 0, err
	}
	if err := writeTrack(zw, track); err != nil {
		_ = zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return cw.n, f.Close()
}

// loadTrack reads a track written by saveTrack.
func loadTrack(path string) ([]trackFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	return readTrack(r)
}

// readTrack decodes JSON lines written by writeTrack.
func readTrack(r io.Reader) ([]trackFrame, error) {
	var track []trackFrame
	dec := json.NewDecoder(r)
	for dec.More() {
		var tf trackFrame
		if err := dec.Decode(&tf); err != nil {
			return nil, err
		}
		track = append(track, tf)
	}
	return track, nil
}

// trackSettings is everything besides the audio that shapes a track.
type trackSettings struct {
	SourceRate int
	Engine     lipsync.EngineConfig
	Smoother   lipsync.SmootherConfig
	FrameMS    int
	Emotion    string
	Intensity  float64
}

// cachedTrack returns the track for data from the track cache, computing
// and storing it on a miss. Cache failures fall back to compute.
func cachedTrack(data []byte, compute func() []trackFrame) ([]trackFrame, error) {
	cc, err := env.ParseAs[cache.Config]()
	if err != nil {
		return nil, fmt.Errorf("error parsing cache config: %w", err)
	}
	if cc.Disabled {
		return compute(), nil
	}
	if cc.Dir == "" {
		if dir, err := gap.NewScope(gap.User, "lipsync").CacheDir(); err == nil {
			cc.Dir = filepath.Join(dir, "tracks")
		}
	}

	tc, err := cache.NewManager(cc)
	if err != nil {
		log.Warn("Track cache unavailable", "error", err)
		return compute(), nil
	}
	defer func() {
		if err := tc.Close(); err != nil {
			log.Warn("Unable to save track cache", "error", err)
		}
	}()

	key, err := cache.Key(data, trackSettings{
		SourceRate: sourceRate,
		Engine:     cfg.Engine,
		Smoother:   cfg.Smoother,
		FrameMS:    cfg.Scheduler.ChunkMS,
		Emotion:    emotionName,
		Intensity:  intensity,
	})
	if err != nil {
		return compute(), nil
	}

	if b, lvl, ok := tc.Get(key); ok {
		track, err := readTrack(bytes.NewReader(b))
		if err == nil {
			log.Debug("Track from cache", "level", lvl, "frames", len(track))
			return track, nil
		}
		log.Warn("Dropping corrupt cached track", "error", err)
		tc.Delete(key)
	}

	track := compute()
	var buf bytes.Buffer
	if err := writeTrack(&buf, track); err != nil {
		return nil, err
	}
	if err := tc.Put(key, buf.Bytes()); err != nil {
		log.Warn("Unable to cache track", "error", err)
	}
	return track, nil
}

// visemeReport summarises the track as markdown.
func visemeReport(name string, seg audio.Segment, track []trackFrame) string {
	counts := make(map[viseme.Viseme]int, len(viseme.All))
	var open float64
	for _, f := range track {
		counts[f.Viseme]++
		open += f.MouthOpen
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	fmt.Fprintf(&b, "%s frames, %.2fs at %d Hz", humanize.Comma(int64(len(track))), seg.Duration(), seg.SampleRate)
	if len(track) > 0 {
		fmt.Fprintf(&b, ", mean mouth open %.2f", open/float64(len(track)))
	}
	b.WriteString("\n\n| Viseme | Frames | Share |\n| --- | ---: | ---: |\n")

	order := slices.Clone(viseme.All)
	slices.SortStableFunc(order, func(a, b viseme.Viseme) int { return counts[b] - counts[a] })
	for _, v := range order {
		n := counts[v]
		if n == 0 {
			continue
		}
		share := 100 * float64(n) / float64(len(track))
		fmt.Fprintf(&b, "| %s | %s | %.1f%% |\n", v.DisplayName(), humanize.Comma(int64(n)), share)
	}
	return b.String()
}

// printReport renders markdown for a terminal and prints it raw otherwise.
func printReport(w io.Writer, md string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		_, err := io.WriteString(w, md)
		return err
	}

	width := reportWidth
	if width == 0 {
		if tw, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = uint(min(tw, 120))
		} else {
			width = 80
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(int(width)),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/lipsync/lipsync/audio"
	"github.com/dgnsrekt/lipsync/lipsync/synth"
)

var (
	synthVowels   []string
	synthDuration time.Duration
	synthGap      time.Duration
	synthRate     int
	synthOut      string

	synthCmd = &cobra.Command{
		Use:   "synth",
		Short: "Render a synthetic vowel sequence to a WAV file",
		Long: paragraph(fmt.Sprintf("\n%s test audio with the spectral shape of voiced vowels, separated by silence. Useful to try the lip-sync without a speech service.",
			keyword("Render"))),
		Example: paragraph("lipsync synth --vowel a,i,a --out vowels.wav\nlipsync synth --duration 2s | lipsync play -"),
		Args:    cobra.NoArgs,
		RunE:    runSynth,
	}
)

func init() {
	synthCmd.Flags().StringSliceVar(&synthVowels, "vowel", []string{"a", "i"}, "vowels to render in order: "+strings.Join(synth.VowelNames(), ", "))
	synthCmd.Flags().DurationVarP(&synthDuration, "duration", "d", 500*time.Millisecond, "length of each vowel")
	synthCmd.Flags().DurationVar(&synthGap, "gap", 200*time.Millisecond, "silence between vowels")
	synthCmd.Flags().IntVarP(&synthRate, "rate", "r", 24000, "sample rate")
	synthCmd.Flags().StringVarP(&synthOut, "out", "o", "-", "output file, - for stdout")
}

func runSynth(*cobra.Command, []string) error {
	samples, err := renderVowels(synthVowels, synthDuration, synthGap, synthRate)
	if err != nil {
		return err
	}
	wav, err := audio.WAVBytes(samples, synthRate)
	if err != nil {
		return err
	}

	if synthOut == "-" {
		_, err = os.Stdout.Write(wav)
		return err
	}
	if err := os.WriteFile(synthOut, wav, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write %s: %w", synthOut, err)
	}
	log.Info("Wrote synthetic audio", "file", synthOut, "size", humanize.Bytes(uint64(len(wav))),
		"length", audio.Duration(len(samples), synthRate))
	return nil
}

// renderVowels renders each vowel for d, with gap of silence before the
// first and after every vowel.
func renderVowels(vowels []string, d, gap time.Duration, sr int) ([]int16, error) {
	if sr <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sr)
	}
	n := audio.SamplesFor(d, sr)
	silence := audio.Silence(gap, sr)

	out := append([]int16(nil), silence...)
	for _, name := range vowels {
		p, err := synth.Vowel(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		tone := audio.BytesToInt16(synth.PCM16(synth.Tones(sr, n, 0, p...)))
		out = append(out, tone...)
		out = append(out, silence...)
	}
	return out, nil
}

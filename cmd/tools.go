package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/caption-sync/internal/audio"
	"github.com/MimeLyc/caption-sync/internal/subtitle"
	"github.com/MimeLyc/caption-sync/internal/waveform"
	pathutil "github.com/MimeLyc/caption-sync/pkg/file"
)

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

func newCaptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "captions <file.srt>",
		Short: "List the captions of an SRT file with timing problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := subtitle.NewReader(args[0]).Read()
			if err != nil {
				return err
			}
			printCaptions(cmd.OutOrStdout(), file)
			return nil
		},
	}
}

func printCaptions(w io.Writer, file *subtitle.File) {
	rows := make([][]string, 0, len(file.Captions))
	for _, c := range file.Captions {
		length := "-"
		if start, end, ok := c.Interval(); ok {
			length = strconv.FormatFloat(end-start, 'f', 2, 64) + "s"
		}
		rows = append(rows, []string{strconv.Itoa(c.ID), c.Start, c.End, length, c.Text})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Start", "End", "Length", "Text"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(w, "Language: %s (%s)\n", display.English.Tags().Name(file.Language), file.Language)

	issues := subtitle.Validate(file.Captions)
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(w, "%d issue(s):\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(w, "  #%d: %s\n", issue.ID, issue.Message)
	}
}

func newExportCommand() *cobra.Command {
	var out string
	var suffix string
	var toClipboard bool

	cmd := &cobra.Command{
		Use:   "export <file.srt>",
		Short: "Normalize an SRT file and write it out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := subtitle.NewReader(args[0]).Read()
			if err != nil {
				return err
			}
			if out == "" && suffix != "" {
				out = pathutil.WithSuffix(args[0], suffix)
			}
			switch {
			case toClipboard:
				if err := writeClipboard(subtitle.Export(file.Captions)); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Copied %d captions to the clipboard\n", len(file.Captions))
			case out != "":
				if err := subtitle.WriteFile(out, file.Captions); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d captions to %s\n", len(file.Captions), out)
			default:
				_, err := io.WriteString(cmd.OutOrStdout(), subtitle.Export(file.Captions))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().StringVar(&suffix, "suffix", "", "Write next to the input, e.g. _clean gives song_clean.srt")
	cmd.Flags().BoolVar(&toClipboard, "clipboard", false, "Copy the result to the clipboard")
	return cmd
}

func newWaveformCommand() *cobra.Command {
	var resolution int
	var sampleRate int
	var asJSON bool
	var save bool

	cmd := &cobra.Command{
		Use:   "waveform <audio-file>",
		Short: "Print the peak envelope of an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			extractor := waveform.NewExtractor(audio.NewAutoDecoder(sampleRate), waveform.WithResolution(resolution))
			env, err := extractor.Extract(cmd.Context(), data)
			if err != nil {
				return err
			}
			if save {
				data, err := json.MarshalIndent(env, "", "  ")
				if err != nil {
					return err
				}
				path := pathutil.ReplaceExt(args[0], ".peaks.json")
				if err := pathutil.WriteAtomic(path, append(data, '\n'), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d peaks to %s\n", len(env.Peaks), path)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(env)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", subtitle.FormatClock(env.Duration), sparkline(env.Peaks, 80))
			return nil
		},
	}
	cmd.Flags().IntVar(&resolution, "resolution", 1000, "Number of peaks")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 44100, "Decode sample rate for ffmpeg input")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the envelope as JSON")
	cmd.Flags().BoolVar(&save, "save", false, "Also write the envelope to <audio>.peaks.json")
	return cmd
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline folds peaks into at most width columns using the column max.
func sparkline(peaks []float64, width int) string {
	if len(peaks) == 0 || width <= 0 {
		return ""
	}
	if width > len(peaks) {
		width = len(peaks)
	}
	var b strings.Builder
	for col := range width {
		lo := col * len(peaks) / width
		hi := (col + 1) * len(peaks) / width
		peak := 0.0
		for _, p := range peaks[lo:hi] {
			peak = max(peak, p)
		}
		level := int(peak * float64(len(sparkLevels)-1))
		level = min(max(level, 0), len(sparkLevels)-1)
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/waveform"
)

func newCaptureCommand() *cobra.Command {
	var (
		source   string
		outFile  string
		plotFile string
		measure  bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a waveform from one channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, scp, err := connect()
			if err != nil {
				return err
			}
			defer cancel()
			defer scp.Close()

			rec, err := scp.CaptureWaveform(ctx, source)
			if err != nil {
				return err
			}

			fmt.Printf("capture %s: %d points from %s spanning %v\n",
				rec.CaptureID, rec.Points(), rec.Source, rec.Duration())

			if measure {
				m := waveform.Measure(rec)
				fmt.Printf("  min %.4g V  max %.4g V  pk-pk %.4g V  mean %.4g V  rms %.4g V\n",
					m.Min, m.Max, m.PeakToPeak, m.Mean, m.RMS)
			}

			if outFile != "" {
				payload, err := json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(outFile, payload, 0644); err != nil {
					return fmt.Errorf("writing %s: %w", outFile, err)
				}
				fmt.Printf("  record written to %s\n", outFile)
			}

			if plotFile != "" {
				if err := waveform.RenderPNG(rec, plotFile); err != nil {
					return fmt.Errorf("rendering %s: %w", plotFile, err)
				}
				fmt.Printf("  plot written to %s\n", plotFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "channel1", "source channel")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the record as JSON to this file")
	cmd.Flags().StringVarP(&plotFile, "plot", "p", "", "render the trace to this image file")
	cmd.Flags().BoolVarP(&measure, "measure", "m", false, "print vertical measurements")
	return cmd
}

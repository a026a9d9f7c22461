package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/scope"
)

func newSetupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Configure trigger, channel or timebase settings",
	}
	cmd.AddCommand(
		newSetupTriggerCommand(),
		newSetupChannelCommand(),
		newSetupTimebaseCommand(),
		newAutoscaleCommand(),
	)
	return cmd
}

func newSetupTriggerCommand() *cobra.Command {
	var t scope.EdgeTrigger

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Configure the edge trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, scp, err := connect()
			if err != nil {
				return err
			}
			defer cancel()
			defer scp.Close()

			if err := scp.SetupTriggerEdge(ctx, t); err != nil {
				return err
			}
			cur := scp.TriggerSettings()
			fmt.Printf("trigger: mode=%s source=%s level=%s coupling=%s slope=%s reject=%s\n",
				cur.Mode, cur.EdgeSource, cur.EdgeLevel, cur.EdgeCoupling, cur.EdgeSlope, cur.EdgeReject)
			return nil
		},
	}

	cmd.Flags().StringVar(&t.Source, "source", "", "trigger source (channel1..4, external, line, wgen...)")
	cmd.Flags().StringVar(&t.Level, "level", "", "trigger level, optionally with V/mV suffix")
	cmd.Flags().StringVar(&t.Coupling, "coupling", "", "trigger coupling (ac, dc, lfreject)")
	cmd.Flags().StringVar(&t.Slope, "slope", "", "trigger slope (positive, negative, either, alternate)")
	cmd.Flags().StringVar(&t.Reject, "reject", "", "trigger reject filter (off, lfreject, hfreject)")
	return cmd
}

func newSetupChannelCommand() *cobra.Command {
	var (
		channel string
		c       scope.ChannelSetup
	)

	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Configure a channel's vertical scale and offset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, scp, err := connect()
			if err != nil {
				return err
			}
			defer cancel()
			defer scp.Close()

			if err := scp.SetupChannel(ctx, channel, c); err != nil {
				return err
			}
			cur, err := scp.ChannelSettings(channel)
			if err != nil {
				return err
			}
			fmt.Printf("%s: scale=%s offset=%s range=%s coupling=%s\n",
				channel, cur.Scale, cur.Offset, cur.Range, cur.Coupling)
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "channel1", "channel to configure")
	cmd.Flags().StringVar(&c.Scale, "scale", "", "volts per division, optionally with V/mV suffix")
	cmd.Flags().StringVar(&c.Offset, "offset", "", "vertical offset, optionally with V/mV suffix")
	return cmd
}

func newSetupTimebaseCommand() *cobra.Command {
	var t scope.TimebaseSetup

	cmd := &cobra.Command{
		Use:   "timebase",
		Short: "Configure horizontal scale and position",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, scp, err := connect()
			if err != nil {
				return err
			}
			defer cancel()
			defer scp.Close()

			if err := scp.SetupTimebase(ctx, t); err != nil {
				return err
			}
			cur := scp.TimebaseSettings()
			fmt.Printf("timebase: mode=%s scale=%s position=%s range=%s\n",
				cur.Mode, cur.Scale, cur.Position, cur.Range)
			return nil
		},
	}

	cmd.Flags().StringVar(&t.Scale, "scale", "", "seconds per division")
	cmd.Flags().StringVar(&t.Position, "position", "", "horizontal position in seconds")
	return cmd
}

func newAutoscaleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "autoscale",
		Short: "Run the instrument's autoscale routine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, scp, err := connect()
			if err != nil {
				return err
			}
			defer cancel()
			defer scp.Close()

			return scp.Autoscale(ctx)
		},
	}
}

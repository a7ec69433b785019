package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wxxsfxyzm/installerx/pkg/client"
)

var (
	devicesWaitTimeout time.Duration
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected Android devices",
	Long:  `List the devices adb knows about with their connection status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		adb, err := newADB()
		if err != nil {
			return err
		}
		devices, err := adb.Devices(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat != "text" {
			return printStructured(cmd.OutOrStdout(), devices)
		}
		return showDevicesTable(devices)
	},
}

var devicesInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show what the selected device reports about itself",
	Long: `Select the device (--device, or the only one connected) and print the
platform properties installs are gated on: SDK level, manufacturer, ABIs,
screen density and locales.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat != "text" {
			return printStructured(cmd.OutOrStdout(), t.platform)
		}

		p := t.platform
		fmt.Printf("Device ID: %s\n", t.device.ID)
		fmt.Printf("Model: %s\n", p.Model)
		fmt.Printf("Manufacturer: %s\n", p.Manufacturer)
		fmt.Printf("Android Version: %s (API %d)\n", p.Release, p.SDK)
		fmt.Printf("ABIs: %v\n", p.ABIs)
		fmt.Printf("Density: %d %v\n", p.Density, p.DensityBuckets())
		fmt.Printf("Locales: %v\n", p.Locales)
		fmt.Printf("Authorizer: %s\n", p.Authorizer)
		fmt.Printf("Type: %s\n", map[bool]string{true: "Emulator", false: "Physical Device"}[t.device.IsEmulator])
		return nil
	},
}

var devicesWaitCmd = &cobra.Command{
	Use:   "wait <device-id>",
	Short: "Wait for a device to come online",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adb, err := newADB()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), devicesWaitTimeout)
		defer cancel()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			devices, err := adb.Devices(ctx)
			if err != nil {
				logger.Debug("Listing devices failed: %v", err)
			}
			for _, d := range devices {
				if d.ID == args[0] && d.Online() {
					fmt.Printf("✓ %s is online\n", d.ID)
					return nil
				}
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("device %s did not come online within %s", args[0], devicesWaitTimeout)
			case <-ticker.C:
			}
		}
	},
}

func showDevicesTable(devices []client.Device) error {
	if len(devices) == 0 {
		fmt.Println("No devices found")
		fmt.Println("\n💡 Troubleshooting:")
		fmt.Println("   • Connect your Android device via USB")
		fmt.Println("   • Enable USB debugging in Developer Options")
		fmt.Println("   • Authorize this computer when prompted")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE ID\tSTATUS\tMODEL\tPRODUCT\tTYPE")
	fmt.Fprintln(w, "---------\t------\t-----\t-------\t----")
	for _, d := range devices {
		deviceType := "Device"
		if d.IsEmulator {
			deviceType = "Emulator"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Status, d.Model, d.Product, deviceType)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.AddCommand(devicesInfoCmd)
	devicesCmd.AddCommand(devicesWaitCmd)

	devicesWaitCmd.Flags().DurationVar(&devicesWaitTimeout, "timeout", 60*time.Second, "how long to wait")
}

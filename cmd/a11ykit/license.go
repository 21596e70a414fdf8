package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rcourtman/a11ykit/internal/usage"
	"github.com/rcourtman/a11ykit/pkg/licensing"
	"github.com/spf13/cobra"
)

func newLicenseCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Inspect and reset the license state",
	}
	cmd.AddCommand(newLicenseStatusCmd(flags))
	cmd.AddCommand(newLicenseClearCacheCmd(flags))
	return cmd
}

type licenseStatus struct {
	Result    licensing.Result           `json:"result"`
	FromCache bool                       `json:"from_cache"`
	Paid      bool                       `json:"paid_features"`
	Status    string                     `json:"status"`
	License   *licensing.LicenseMetadata `json:"license,omitempty"`
	Usage     *usage.Record              `json:"usage,omitempty"`
}

func newLicenseStatusCmd(flags *globalFlags) *cobra.Command {
	var (
		licenseKey string
		domain     string
		asJSON     bool
		withUsage  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the license and print what it unlocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.Close()

			result := a.authorize(cmd.Context(), licenseKey, domain)
			status := licenseStatus{
				Result:    result,
				FromCache: result.FromCache,
				Paid:      a.service.HasPaidFeatures(result),
				Status:    a.service.StatusMessage(result),
				License:   a.service.Metadata(result),
			}
			if withUsage {
				rec, err := a.tracker.Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("load usage record: %w", err)
				}
				status.Usage = &rec
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			fmt.Fprintln(out, status.Status)
			fmt.Fprintf(out, "Tier:          %s\n", result.Tier.DisplayName())
			fmt.Fprintf(out, "Paid features: %t\n", status.Paid)
			if result.Domain != "" {
				fmt.Fprintf(out, "Domain:        %s\n", result.Domain)
			}
			if result.ExpiresAt != nil {
				fmt.Fprintf(out, "Expires:       %s\n", result.ExpiresAt.Format(time.RFC3339))
			}
			if result.Error != "" {
				fmt.Fprintf(out, "Error:         %s\n", result.Error)
			}
			if status.Usage != nil {
				fmt.Fprintf(out, "Recorded uses: %d (max %d)\n", len(status.Usage.Uses), a.tracker.MaxEntries())
				if !status.Usage.LastUsed.IsZero() {
					fmt.Fprintf(out, "Last used:     %s\n", status.Usage.LastUsed.Format(time.RFC3339))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&licenseKey, "license-key", "", "license key (defaults to A11YKIT_LICENSE_KEY)")
	cmd.Flags().StringVar(&domain, "domain", "", "domain the license is checked against")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	cmd.Flags().BoolVar(&withUsage, "usage", false, "include the recorded usage log")
	return cmd
}

func newLicenseClearCacheCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Forget the cached license decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.Close()

			if err := a.service.ClearCache(cmd.Context()); err != nil {
				return fmt.Errorf("clear license cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "License cache cleared")
			return nil
		},
	}
}

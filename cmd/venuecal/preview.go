package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"venuecal/internal/calendar"
	"venuecal/internal/config"
	"venuecal/internal/preview"
	"venuecal/internal/recurrence"
)

func newPreviewCmd(flags *rootFlags) *cobra.Command {
	var (
		input  string
		mode   string
		value  int
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Expand a rule read as JSON from a file or stdin",
		Example: `  echo '{"rule":{"pattern":"weekly","weekdays":[2],"startDate":"2025-01-07","endCount":3}}' | venuecal preview
  venuecal preview -f rule.json --mode months --value 6`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			req, err := readPreviewRequest(in)
			if err != nil {
				return err
			}
			if mode != "" {
				req.Horizon = &preview.Horizon{Mode: preview.HorizonMode(mode), Value: value}
			}

			sum, err := runPreview(cmd, conf, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(sum)
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "-", "JSON file with {rule, exceptions, horizon}; - reads stdin")
	cmd.Flags().StringVar(&mode, "mode", "", "Horizon mode: count or months")
	cmd.Flags().IntVar(&value, "value", 0, "Horizon value for --mode")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
	return cmd
}

func readPreviewRequest(r io.Reader) (preview.Request, error) {
	var req preview.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return preview.Request{}, fmt.Errorf("decode preview request: %w", err)
	}
	return req, nil
}

// runPreview expands req offline. Open-ended rules without a horizon fall
// back to the configured default.
func runPreview(cmd *cobra.Command, conf *config.Config, req preview.Request) (preview.Summary, error) {
	svc := preview.NewService(nil, nil, nil, preview.Options{
		Cap:      conf.Preview.SafetyCap,
		Locale:   calendar.ParseLocale(conf.Locale),
		Location: conf.Location(),
	})
	sum, err := svc.Preview(cmd.Context(), req)
	if errors.Is(err, recurrence.ErrHorizonRequired) && req.Horizon == nil {
		h := conf.Preview.DefaultHorizon
		req.Horizon = &preview.Horizon{Mode: preview.HorizonMode(h.Mode), Value: h.Value}
		sum, err = svc.Preview(cmd.Context(), req)
	}
	return sum, err
}

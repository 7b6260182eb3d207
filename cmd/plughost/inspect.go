package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/plughost/internal/config"
	"github.com/dshills/plughost/internal/plugin"
)

func newInspectCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Run one load cycle and print the plugin report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			h, err := newHost(cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer h.Close()

			rep := h.manager.Load(cmd.Context())
			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Report   plugin.Report `json:"report"`
					Registry plugin.Counts `json:"registry"`
				}{rep, h.manager.Registry().Counts()})
			case "table":
				return writeReport(cmd.OutOrStdout(), rep, h.manager.Registry().Counts())
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}

func writeReport(w io.Writer, rep plugin.Report, counts plugin.Counts) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tSTATE\tALLOWED\tACCEPTED\tDENIED\tDUPLICATES\tERROR")
	for _, st := range rep.Plugins {
		errText := ""
		if st.Err != nil {
			errText = st.Err.Error()
		}
		var allowed []string
		for _, c := range st.Allowed.List() {
			allowed = append(allowed, string(c))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			displayID(st), st.Source, st.State, strings.Join(allowed, ","),
			st.Merge.Accepted.Total(), st.Merge.Denied.Total(), st.Merge.Duplicates.Total(), errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(tw, "KIND\tENTRIES")
	for _, k := range plugin.Kinds() {
		fmt.Fprintf(tw, "%s\t%d\n", k, counts[k])
	}
	return tw.Flush()
}

func displayID(st plugin.Status) string {
	if st.ID != "" {
		return st.ID
	}
	return st.URL
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out, err := toml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

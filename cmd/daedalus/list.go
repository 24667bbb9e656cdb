package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/Daedalus/pkg/spec"
)

type listOptions struct {
	catalogs   []string
	jsonOutput bool
}

type listEntry struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Category string   `json:"category,omitempty"`
	Inputs   []string `json:"inputs"`
	Outputs  []string `json:"outputs"`
}

func newListCmd(root *rootFlags) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the executors of a catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(*app) error {
				return runList(cmd, opts)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&opts.catalogs, "catalog", "c", nil, "Catalog file or directory (repeatable)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runList(cmd *cobra.Command, opts *listOptions) error {
	cat, err := loadCatalog(opts.catalogs)
	if err != nil {
		return err
	}

	entries := make([]listEntry, 0, cat.Len())
	for _, id := range cat.IDs() {
		s, _ := cat.Get(id)
		entries = append(entries, listEntry{
			ID:       s.ID,
			Name:     s.DisplayName(),
			Kind:     string(s.Kind),
			Category: s.Category,
			Inputs:   portNames(s.InPorts),
			Outputs:  portNames(s.OutPorts),
		})
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tNAME\tINPUTS\tOUTPUTS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Kind, e.Name,
			strings.Join(e.Inputs, ","), strings.Join(e.Outputs, ","))
	}
	return w.Flush()
}

func portNames(ports []spec.PortSpec) []string {
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name+":"+p.Kind.String())
	}
	return names
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type validateOptions struct {
	catalogs []string
}

func newValidateCmd(root *rootFlags) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a catalog and build a worker for every executor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, func(a *app) error {
				return runValidate(cmd, a, opts)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&opts.catalogs, "catalog", "c", nil, "Catalog file or directory (repeatable)")

	return cmd
}

func runValidate(cmd *cobra.Command, a *app, opts *validateOptions) error {
	cat, err := loadCatalog(opts.catalogs)
	if err != nil {
		return err
	}
	d, e, err := a.newDriver()
	if err != nil {
		return err
	}
	defer e.Close()
	session, err := d.LoadSession(cat)
	if err != nil {
		return err
	}
	if err := d.Close(session); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d executors ok\n", cat.Len())
	return nil
}

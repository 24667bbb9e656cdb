package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/Daedalus/pkg/driver"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/settings"
)

type runOptions struct {
	catalogs         []string
	executor         string
	settingsPath     string
	params           []string
	inputs           []string
	ignoreParameters bool
	readOnlyInputs   bool
	subSettings      string
	absolutePaths    bool
	visibleOutput    string
	allOutputs       bool
	logSettings      bool
	logTiming        bool
	repeat           int
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [executor]",
		Short: "Run one executor of a catalog and print its outputs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.executor = args[0]
			}
			return root.withApp(cmd, func(a *app) error {
				return runRun(cmd, a, opts)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&opts.catalogs, "catalog", "c", nil, "Catalog file or directory (repeatable)")
	cmd.Flags().StringVarP(&opts.executor, "executor", "e", "", "Executor id")
	cmd.Flags().StringVarP(&opts.settingsPath, "settings", "s", "", "Settings document (JSON)")
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "Parameter key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Input port=value, or port=@file (repeatable)")
	cmd.Flags().BoolVar(&opts.ignoreParameters, "ignore-parameters", false, "Ignore --param values")
	cmd.Flags().BoolVar(&opts.readOnlyInputs, "read-only-inputs", false, "Copy inputs instead of handing them over")
	cmd.Flags().StringVar(&opts.subSettings, "sub-settings", "", "Path of the section of the settings document to use")
	cmd.Flags().BoolVar(&opts.absolutePaths, "absolute-paths", false, "Resolve relative file and folder settings against the settings file")
	cmd.Flags().StringVar(&opts.visibleOutput, "visible-output", "", "Output port to print")
	cmd.Flags().BoolVar(&opts.allOutputs, "all", false, "Print every output port")
	cmd.Flags().BoolVar(&opts.logSettings, "log-settings", false, "Log the merged settings document")
	cmd.Flags().BoolVar(&opts.logTiming, "log-timing", false, "Log execution timing")
	cmd.Flags().IntVar(&opts.repeat, "repeat", 1, "Run the executor this many times")

	return cmd
}

func validateRunOptions(opts *runOptions) error {
	if strings.TrimSpace(opts.executor) == "" {
		return fmt.Errorf("%w: an executor id is required", errUsage)
	}
	if opts.repeat < 1 {
		return fmt.Errorf("%w: --repeat must be at least 1", errUsage)
	}
	if opts.absolutePaths && opts.settingsPath == "" {
		return fmt.Errorf("%w: --absolute-paths needs --settings", errUsage)
	}
	return nil
}

func runRun(cmd *cobra.Command, a *app, opts *runOptions) error {
	if err := validateRunOptions(opts); err != nil {
		return err
	}
	cat, err := loadCatalog(opts.catalogs)
	if err != nil {
		return err
	}
	s, ok := cat.Get(opts.executor)
	if !ok {
		return fmt.Errorf("%w: executor %q is not in the catalog", errUsage, opts.executor)
	}

	rawParams, err := keyValues("param", opts.params)
	if err != nil {
		return err
	}
	params, err := settings.FromStrings(s, rawParams)
	if err != nil {
		return err
	}
	inputs, err := keyValues("input", opts.inputs)
	if err != nil {
		return err
	}
	for name, value := range inputs {
		if path, ok := strings.CutPrefix(value, "@"); ok {
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("input %q: %w", name, err)
			}
			inputs[name] = string(raw)
		}
	}

	req := driver.RunRequest{
		Executor:   opts.executor,
		Inputs:     inputs,
		Parameters: params,
		Options: engine.Options{
			IgnoreParameters: opts.ignoreParameters,
			ReadOnlyInputs:   opts.readOnlyInputs,
			AbsolutePaths:    opts.absolutePaths,
			SubSettings:      opts.subSettings,
			VisibleOutput:    opts.visibleOutput,
		},
		LogSettings: opts.logSettings,
		LogTiming:   opts.logTiming,
		Repeat:      opts.repeat,
	}
	if opts.settingsPath != "" {
		req.Settings, err = os.ReadFile(opts.settingsPath)
		if err != nil {
			return fmt.Errorf("failed to read settings: %w", err)
		}
		abs, err := filepath.Abs(opts.settingsPath)
		if err != nil {
			return err
		}
		req.Options.BaseDir = filepath.Dir(abs)
	}

	d, e, err := a.newDriver()
	if err != nil {
		return err
	}
	defer e.Close()
	req.Session, err = d.LoadSession(cat)
	if err != nil {
		return err
	}
	defer d.Close(req.Session)

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := d.Run(ctx, req)
	if err != nil {
		return err
	}
	if res.Cancelled {
		fmt.Fprintln(cmd.ErrOrStderr(), "execution cancelled")
	}
	printOutputs(cmd, res, opts.allOutputs)
	return nil
}

func printOutputs(cmd *cobra.Command, res *driver.RunResult, all bool) {
	out := cmd.OutOrStdout()
	if text, ok := res.VisibleText(); ok && !all {
		fmt.Fprintln(out, text)
		return
	}
	names := make([]string, 0, len(res.Outputs))
	for name := range res.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s: %s\n", name, res.Outputs[name])
	}
}

// keyValues splits repeated key=value flags.
func keyValues(flag string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --%s %q is not key=value", errUsage, flag, pair)
		}
		out[key] = value
	}
	return out, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

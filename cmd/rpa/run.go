package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/entrhq/rpacore/pkg/core"
	"github.com/entrhq/rpacore/pkg/performance"
	"github.com/entrhq/rpacore/pkg/ui"
)

type runOptions struct {
	url      string
	appName  string
	script   string
	wait     string
	headless bool
	video    bool
	trace    bool
	tags     []string
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open a URL in a tracked run and capture a screenshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.url == "" {
				return errors.New("--url is required")
			}

			var coreOpts []core.Option
			if cmd.Flags().Changed("headless") {
				coreOpts = append(coreOpts, core.WithHeadless(opts.headless))
			}
			if cmd.Flags().Changed("video") {
				coreOpts = append(coreOpts, core.WithVideo(opts.video))
			}
			if cmd.Flags().Changed("trace") {
				coreOpts = append(coreOpts, core.WithTracing(opts.trace))
			}
			if opts.script != "" {
				coreOpts = append(coreOpts, core.WithScriptName(opts.script))
			}
			coreOpts = append(coreOpts,
				core.WithTags(opts.tags...),
				core.WithOutput(cmd.OutOrStdout()),
			)

			reg := core.NewRegistry(a.settings, core.WithConsole(cmd.ErrOrStderr()))
			defer reg.CleanupAll()

			c, err := core.New(reg, opts.appName, coreOpts...)
			if err != nil {
				return err
			}
			runErr := c.Run(func(c *core.Core) error {
				return openAndCapture(c, opts.url, opts.wait)
			})

			printArtifacts(cmd.OutOrStdout(), c.Artifacts())
			return runErr
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "URL to open")
	cmd.Flags().StringVar(&opts.appName, "app", "demo", "Application name (artifact folder)")
	cmd.Flags().StringVar(&opts.script, "script", "", "Script name recorded for the run")
	cmd.Flags().StringVar(&opts.wait, "wait", ui.WaitLoad, "Navigation wait condition (load, domcontentloaded, networkidle, commit)")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run the browser headless")
	cmd.Flags().BoolVar(&opts.video, "video", false, "Record a video of each page")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Record a Playwright trace")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag the tracked run (repeatable)")
	return cmd
}

func openAndCapture(c *core.Core, url, wait string) error {
	u, err := c.UI()
	if err != nil {
		return err
	}

	err = c.Step("Open page", performance.StepNavigation, func(step *performance.Step) error {
		step.SetMetadata("url", url)
		return u.WithinStep(step).Goto(url, wait)
	})
	if err != nil {
		return err
	}

	return c.Step("Capture screenshot", performance.StepVerification, func(step *performance.Step) error {
		path, err := c.TakeFullPageScreenshot("landing")
		if err == nil {
			step.SetMetadata("screenshot", path)
		}
		return err
	})
}

func printArtifacts(w io.Writer, a core.Artifacts) {
	fmt.Fprintf(w, "Run directory: %s\n", a.RunDir)
	fmt.Fprintf(w, "Log file:      %s\n", a.LogFile)
	fmt.Fprintf(w, "Status:        %s (%s)\n", a.Status, a.Duration)
	fmt.Fprintf(w, "Screenshots:   %d\n", a.Screenshots)
	if a.TracePath != "" {
		fmt.Fprintf(w, "Trace:         %s\n", a.TracePath)
	}
	if a.MergedVideo != "" {
		fmt.Fprintf(w, "Video:         %s\n", a.MergedVideo)
	} else {
		for _, v := range a.Videos {
			fmt.Fprintf(w, "Video:         %s\n", v)
		}
	}
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sofmeright/crtb/src/artifact"
	"github.com/sofmeright/crtb/src/build"
	_ "github.com/sofmeright/crtb/src/build/engines"
	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/deploy"
	"github.com/sofmeright/crtb/src/logging"
	"github.com/sofmeright/crtb/src/manifest"
	"github.com/sofmeright/crtb/src/output"
	"github.com/sofmeright/crtb/src/source"
	"github.com/sofmeright/crtb/src/status"
)

var (
	deployPull   bool
	deployKinds  []string
	deployStream bool
	deployNoLive bool
	deployJobs   int
	deployJUnit  string
)

var deployCmd = &cobra.Command{
	Use:   "deploy [component-id...]",
	Short: "Resolve, build and deploy components",
	Long: `Resolve, build and deploy components into the server directory.

Components are selected by id (world, pl:worldedit, dp:terralith, ...) or
by kind with --kind. With no selection every configured component is
deployed. Components run concurrently; one failing never stops the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd, args, deployPull)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [component-id...]",
	Short: "Deploy current state without contacting remotes",
	Long: `Deploy what is already staged or cached. HTTP downloads are reused
without revalidation and git checkouts are not fetched; components whose
cached source is already deployed are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd, args, false)
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull [component-id...]",
	Short: "Fetch fresh sources, then build and deploy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd, args, true)
	},
}

func init() {
	deployCmd.Flags().BoolVar(&deployPull, "pull", false, "fetch fresh sources before deploying")
	for _, c := range []*cobra.Command{deployCmd, updateCmd, pullCmd} {
		c.Flags().StringSliceVar(&deployKinds, "kind", nil, "only components of these kinds (comma-separated)")
		c.Flags().BoolVar(&deployStream, "stream", false, "stream build output prefixed with the component id")
		c.Flags().BoolVar(&deployNoLive, "no-live", false, "plain line output even on a terminal")
		c.Flags().IntVar(&deployJobs, "jobs", 0, "maximum components processed at once (0: no limit)")
		c.Flags().StringVar(&deployJUnit, "junit", "", "write a JUnit XML report to this path")
		rootCmd.AddCommand(c)
	}
}

func runDeploy(cmd *cobra.Command, args []string, pull bool) error {
	all, err := cfg.ComponentList()
	if err != nil {
		return err
	}
	selected, err := selectComponents(all, args, deployKinds)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		fmt.Fprintln(os.Stderr, "no components selected")
		return nil
	}

	rules, err := cfg.Deploy(cfg.Server.Flavor)
	if err != nil {
		return err
	}
	serverRoot := cfg.ServerRoot()
	level, err := deploy.LevelName(serverRoot)
	if err != nil {
		logger.Warn("reading level name, using default", "file", filepath.Join(serverRoot, deploy.ServerProperties), "error", err)
	}

	reporter := status.New(os.Stderr, !deployNoLive)
	log := logger
	if live, ok := reporter.(*status.LiveReporter); ok {
		format, _ := logging.ParseFormat(logFormat)
		log = logging.New(logging.Config{Verbose: verbose, Quiet: quiet, Format: format, Writer: live})
	}

	cacheRoot := cfg.CacheRoot()
	orch := &deploy.Orchestrator{
		Flavor: cfg.Server.Flavor,
		Layout: deploy.Layout{Root: serverRoot, Rules: rules, LevelName: level},
		Sources: &source.Resolver{
			ProjectRoot: cfg.Root,
			CacheRoot:   cacheRoot,
			HTTPTimeout: cfg.Timeouts.HTTPTimeout(),
			Logger:      log,
		},
		Builder: &build.Runner{
			Image:           cfg.Runner.Image,
			ContainerEngine: cfg.Runner.Engine,
			Stream:          deployStream,
			LogLine:         reporter.Log,
			Verbose:         verbose,
			Logger:          log,
		},
		Locator: &artifact.Locator{
			UnpackRoot: filepath.Join(cacheRoot, "unpacked"),
			Logger:     log,
		},
		Manifest:       manifest.Load(serverRoot, log),
		Status:         reporter,
		Logger:         log,
		Jobs:           deployJobs,
		ResolveNotice:  cfg.Timeouts.ResolveNoticeAfter(),
		ResolveTimeout: cfg.Timeouts.ResolveDeadline(),
	}

	output.SectionStart(os.Stderr, "crtb_deploy", "Deploying components")
	batch := orch.Run(cmd.Context(), selected, deploy.Options{Pull: pull})
	reporter.Close()
	output.SectionEnd(os.Stderr, "crtb_deploy")

	output.DeploySummary(cmd.OutOrStdout(), batch, output.UseColor())

	if deployJUnit != "" {
		if err := output.WriteDeployJUnit(deployJUnit, batch); err != nil {
			logger.Warn("writing junit report", "path", deployJUnit, "error", err)
		}
	}

	if n := batch.Failed(); n > 0 {
		return fmt.Errorf("%d of %d components failed", n, len(batch.Outcomes))
	}
	return nil
}

// selectComponents filters comps by id arguments and kind names. Both
// empty selects everything.
func selectComponents(comps []component.Component, ids, kinds []string) ([]component.Component, error) {
	wantIDs := make(map[component.ID]bool, len(ids))
	for _, arg := range ids {
		kind, name, err := component.ParseID(arg)
		if err != nil {
			return nil, err
		}
		wantIDs[component.Component{Kind: kind, Name: name}.ID()] = true
	}
	wantKinds := make(map[component.Kind]bool, len(kinds))
	for _, k := range kinds {
		kind, err := component.ParseKind(k)
		if err != nil {
			return nil, err
		}
		wantKinds[kind] = true
	}

	var out []component.Component
	found := make(map[component.ID]bool, len(wantIDs))
	for _, c := range comps {
		if len(wantIDs) > 0 && !wantIDs[c.ID()] {
			continue
		}
		if len(wantKinds) > 0 && !wantKinds[c.Kind] {
			continue
		}
		found[c.ID()] = true
		out = append(out, c)
	}
	for id := range wantIDs {
		if !found[id] && len(wantKinds) == 0 {
			return nil, fmt.Errorf("unknown component %q", id)
		}
	}
	return out, nil
}

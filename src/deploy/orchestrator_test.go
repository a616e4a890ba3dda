package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/crtb/src/artifact"
	"github.com/sofmeright/crtb/src/build"
	_ "github.com/sofmeright/crtb/src/build/engines"
	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/config"
	"github.com/sofmeright/crtb/src/manifest"
	"github.com/sofmeright/crtb/src/source"
	"github.com/sofmeright/crtb/src/status"
)

var paper = config.DeployConfig{
	WorldContainer:    config.WorldContainerRoot,
	SupportsPlugins:   true,
	SupportsDatapacks: true,
}

type fixture struct {
	project string
	server  string
	orch    *Orchestrator
}

func newFixture(t *testing.T, flavor string, rules config.DeployConfig) *fixture {
	t.Helper()
	project := t.TempDir()
	server := filepath.Join(project, "server")
	require.NoError(t, os.MkdirAll(server, 0o755))
	level, err := LevelName(server)
	require.NoError(t, err)

	return &fixture{
		project: project,
		server:  server,
		orch: &Orchestrator{
			Flavor:   flavor,
			Layout:   Layout{Root: server, Rules: rules, LevelName: level},
			Sources:  &source.Resolver{ProjectRoot: project, CacheRoot: filepath.Join(project, ".crtb", "cache")},
			Builder:  &build.Runner{},
			Locator:  &artifact.Locator{UnpackRoot: filepath.Join(project, ".crtb", "cache", "unpacked")},
			Manifest: manifest.Load(server, nil),
		},
	}
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(f.project, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func localPlugin(name, dir string) component.Component {
	return component.Component{Kind: component.Plugin, Name: name, Source: component.LocalSource{Path: dir}}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRun_PartialBatchFailure(t *testing.T) {
	f := newFixture(t, "paper", paper)
	f.write(t, "src/a/a.jar", "a")
	f.write(t, "src/b/b.jar", "b")

	batch := f.orch.Run(context.Background(), []component.Component{
		localPlugin("a", "src/a"),
		localPlugin("ghost", "src/missing"),
		localPlugin("b", "src/b"),
	}, Options{})

	assert.Equal(t, 2, batch.Succeeded())
	assert.Equal(t, 1, batch.Failed())
	require.Len(t, batch.Failures(), 1)
	failed := batch.Failures()[0]
	assert.Equal(t, component.ID("pl:ghost"), failed.ID)
	assert.Equal(t, "source unavailable", failed.Message)
	assert.ErrorIs(t, failed.Err, source.ErrSourceUnavailable)
	assert.NotEmpty(t, batch.RunID)

	reloaded := manifest.Load(f.server, nil)
	assert.Equal(t, []component.ID{"pl:a", "pl:b"}, reloaded.IDs())
	assert.Equal(t, []string{"a.jar", "b.jar"}, listDir(t, filepath.Join(f.server, "plugins")))
}

func TestRun_StaleCleanup(t *testing.T) {
	f := newFixture(t, "paper", paper)
	old := f.write(t, "src/p/p-1.0.jar", "v1")
	c := localPlugin("p", "src/p")

	batch := f.orch.Run(context.Background(), []component.Component{c}, Options{})
	require.Equal(t, 1, batch.Succeeded())
	assert.Equal(t, []string{"p-1.0.jar"}, listDir(t, filepath.Join(f.server, "plugins")))

	require.NoError(t, os.Remove(old))
	f.write(t, "src/p/p-2.0.jar", "v2")

	batch = f.orch.Run(context.Background(), []component.Component{c}, Options{Pull: true})
	require.Equal(t, 1, batch.Succeeded(), "%+v", batch.Outcomes)
	assert.Equal(t, []string{"p-2.0.jar"}, listDir(t, filepath.Join(f.server, "plugins")))
	assert.Equal(t, []string{filepath.Join(f.server, "plugins", "p-2.0.jar")}, f.orch.Manifest.Paths(c.ID()))
}

func TestRun_UnsupportedKind(t *testing.T) {
	f := newFixture(t, "vanilla", config.DeployConfig{WorldContainer: config.WorldContainerRoot, SupportsDatapacks: true})
	f.write(t, "src/p/p.jar", "p")

	batch := f.orch.Run(context.Background(), []component.Component{localPlugin("p", "src/p")}, Options{})

	require.Len(t, batch.Outcomes, 1)
	out := batch.Outcomes[0]
	assert.False(t, out.Success)
	assert.Equal(t, "unsupported on vanilla", out.Message)
	assert.ErrorIs(t, out.Err, ErrUnsupportedKind)
	assert.NoDirExists(t, filepath.Join(f.server, "plugins"))
	assert.NoFileExists(t, filepath.Join(f.server, manifest.FileName))
	assert.NoDirExists(t, filepath.Join(f.project, "components"), "nothing may be resolved either")
}

func TestRun_ConcurrentComponentsAllRecorded(t *testing.T) {
	f := newFixture(t, "paper", paper)
	var comps []component.Component
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("p%02d", i)
		f.write(t, filepath.Join("src", name, name+".jar"), name)
		comps = append(comps, localPlugin(name, filepath.Join("src", name)))
	}

	batch := f.orch.Run(context.Background(), comps, Options{})
	require.Equal(t, 20, batch.Succeeded(), "%+v", batch.Failures())

	reloaded := manifest.Load(f.server, nil)
	require.Len(t, reloaded.IDs(), 20)
	for _, c := range comps {
		assert.Equal(t, []string{filepath.Join(f.server, "plugins", c.Name+".jar")}, reloaded.Paths(c.ID()))
	}
}

func TestRun_JobsLimit(t *testing.T) {
	var running, peak atomic.Int32
	f := newFixture(t, "paper", paper)
	f.orch.Jobs = 2
	f.orch.Sources = resolverFunc(func(ctx context.Context, c component.Component, _ source.Options) (source.Result, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return source.Result{}, errors.New("stop here")
	})

	var comps []component.Component
	for i := 0; i < 6; i++ {
		comps = append(comps, localPlugin(fmt.Sprint(i), "x"))
	}
	batch := f.orch.Run(context.Background(), comps, Options{})
	assert.Equal(t, 6, batch.Failed())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

type resolverFunc func(ctx context.Context, c component.Component, opts source.Options) (source.Result, error)

func (f resolverFunc) Resolve(ctx context.Context, c component.Component, opts source.Options) (source.Result, error) {
	return f(ctx, c, opts)
}

type countingBuilder struct{ calls atomic.Int32 }

func (b *countingBuilder) Run(_ context.Context, _ component.Component, src string) (string, error) {
	b.calls.Add(1)
	return src, nil
}

func TestRun_CachedShortCircuit(t *testing.T) {
	f := newFixture(t, "paper", paper)
	jar := f.write(t, "cache/p.jar", "jar")
	f.orch.Sources = resolverFunc(func(context.Context, component.Component, source.Options) (source.Result, error) {
		return source.Result{Path: jar, Cached: true}, nil
	})
	builder := &countingBuilder{}
	f.orch.Builder = builder
	c := component.Component{Kind: component.Plugin, Name: "p", Source: component.HTTPSource{URL: "http://example.invalid/p.jar"}}

	// First deployment: nothing recorded yet, so the cached source is deployed.
	batch := f.orch.Run(context.Background(), []component.Component{c}, Options{})
	require.Equal(t, 1, batch.Succeeded())
	assert.False(t, batch.Outcomes[0].Cached)
	assert.Equal(t, int32(1), builder.calls.Load())

	// Second run: recorded and present, so nothing is rebuilt.
	batch = f.orch.Run(context.Background(), []component.Component{c}, Options{})
	require.Equal(t, 1, batch.Succeeded())
	assert.True(t, batch.Outcomes[0].Cached)
	assert.Equal(t, "up to date", batch.Outcomes[0].Message)
	assert.Equal(t, int32(1), builder.calls.Load())

	// Pull always re-evaluates.
	batch = f.orch.Run(context.Background(), []component.Component{c}, Options{Pull: true})
	require.Equal(t, 1, batch.Succeeded())
	assert.False(t, batch.Outcomes[0].Cached)
	assert.Equal(t, int32(2), builder.calls.Load())

	// A deployed file removed by hand is redeployed.
	require.NoError(t, os.Remove(filepath.Join(f.server, "plugins", "p.jar")))
	batch = f.orch.Run(context.Background(), []component.Component{c}, Options{})
	require.Equal(t, 1, batch.Succeeded())
	assert.False(t, batch.Outcomes[0].Cached)
	assert.FileExists(t, filepath.Join(f.server, "plugins", "p.jar"))
}

func TestRun_WorldMergedIntoLevelFolder(t *testing.T) {
	f := newFixture(t, "paper", config.DeployConfig{WorldContainer: config.WorldContainerWorlds, SupportsPlugins: true, SupportsDatapacks: true})
	require.NoError(t, os.WriteFile(filepath.Join(f.server, ServerProperties), []byte("motd=hi\nlevel-name=lobby\n"), 0o644))
	level, err := LevelName(f.server)
	require.NoError(t, err)
	f.orch.Layout.LevelName = level

	f.write(t, "maps/lobby/level.dat", "lvl")
	f.write(t, "maps/lobby/region/r.0.0.mca", "r")
	existing := filepath.Join(f.server, "worlds", "lobby", "playerdata", "u.dat")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("player"), 0o644))

	world := component.Component{Kind: component.World, Source: component.LocalSource{Path: "maps/lobby"}}
	batch := f.orch.Run(context.Background(), []component.Component{world}, Options{})
	require.Equal(t, 1, batch.Succeeded(), "%+v", batch.Outcomes)

	worldDir := filepath.Join(f.server, "worlds", "lobby")
	assert.FileExists(t, filepath.Join(worldDir, "level.dat"))
	assert.FileExists(t, filepath.Join(worldDir, "region", "r.0.0.mca"))
	assert.FileExists(t, existing, "merge keeps unrelated world content")
	assert.ElementsMatch(t,
		[]string{filepath.Join(worldDir, "level.dat"), filepath.Join(worldDir, "region")},
		f.orch.Manifest.Paths(component.ID("world")))
}

func TestRun_DatapackIntoWorld(t *testing.T) {
	f := newFixture(t, "paper", paper)
	f.write(t, "packs/terralith/pack.mcmeta", "{}")
	dp := component.Component{Kind: component.Datapack, Name: "terralith", Source: component.LocalSource{Path: "packs/terralith"}}

	batch := f.orch.Run(context.Background(), []component.Component{dp}, Options{})
	require.Equal(t, 1, batch.Succeeded(), "%+v", batch.Outcomes)
	assert.FileExists(t, filepath.Join(f.server, "world", "datapacks", "terralith", "pack.mcmeta"))
}

func TestRun_WorldRedeployKeepsDatapackComponents(t *testing.T) {
	f := newFixture(t, "paper", paper)
	f.write(t, "maps/main/level.dat", "lvl")
	f.write(t, "maps/main/datapacks/bundled/pack.mcmeta", "{}")
	f.write(t, "maps/main/.git/HEAD", "ref: refs/heads/main")
	f.write(t, "packs/terralith/pack.mcmeta", "{}")
	f.write(t, "packs/terralith/.git/HEAD", "ref: refs/heads/main")

	world := component.Component{Kind: component.World, Source: component.LocalSource{Path: "maps/main"}}
	dp := component.Component{Kind: component.Datapack, Name: "terralith", Source: component.LocalSource{Path: "packs/terralith"}}
	worldDir := filepath.Join(f.server, "world")
	datapacks := filepath.Join(worldDir, "datapacks")

	batch := f.orch.Run(context.Background(), []component.Component{world}, Options{})
	require.Equal(t, 1, batch.Succeeded(), "%+v", batch.Outcomes)
	assert.ElementsMatch(t,
		[]string{filepath.Join(worldDir, "level.dat"), filepath.Join(datapacks, "bundled")},
		f.orch.Manifest.Paths(component.ID("world")))
	assert.NoDirExists(t, filepath.Join(worldDir, ".git"))

	batch = f.orch.Run(context.Background(), []component.Component{dp}, Options{})
	require.Equal(t, 1, batch.Succeeded(), "%+v", batch.Outcomes)
	assert.FileExists(t, filepath.Join(datapacks, "terralith", "pack.mcmeta"))
	assert.NoDirExists(t, filepath.Join(datapacks, "terralith", ".git"))

	batch = f.orch.Run(context.Background(), []component.Component{world}, Options{})
	require.Equal(t, 1, batch.Succeeded(), "%+v", batch.Outcomes)
	assert.FileExists(t, filepath.Join(datapacks, "terralith", "pack.mcmeta"))
	assert.FileExists(t, filepath.Join(datapacks, "bundled", "pack.mcmeta"))

	batch = f.orch.Run(context.Background(), []component.Component{world, dp}, Options{})
	require.Equal(t, 2, batch.Succeeded(), "%+v", batch.Outcomes)
	assert.FileExists(t, filepath.Join(datapacks, "terralith", "pack.mcmeta"))
	assert.FileExists(t, filepath.Join(datapacks, "bundled", "pack.mcmeta"))
}

func TestRun_WorldEvictionSparesKindDirectories(t *testing.T) {
	f := newFixture(t, "paper", paper)
	f.write(t, "maps/main/level.dat", "lvl")
	f.write(t, "packs/terralith/pack.mcmeta", "{}")
	world := component.Component{Kind: component.World, Source: component.LocalSource{Path: "maps/main"}}
	dp := component.Component{Kind: component.Datapack, Name: "terralith", Source: component.LocalSource{Path: "packs/terralith"}}

	batch := f.orch.Run(context.Background(), []component.Component{dp}, Options{})
	require.Equal(t, 1, batch.Succeeded(), "%+v", batch.Outcomes)

	// A world record that claims the whole datapacks folder.
	datapacks := filepath.Join(f.server, "world", "datapacks")
	f.orch.Manifest.SetPaths(component.ID("world"), []string{datapacks})

	batch = f.orch.Run(context.Background(), []component.Component{world}, Options{})
	require.Equal(t, 1, batch.Succeeded(), "%+v", batch.Outcomes)
	assert.FileExists(t, filepath.Join(datapacks, "terralith", "pack.mcmeta"))
}

func TestRun_DatapacksUnsupportedOnOldVersions(t *testing.T) {
	f := newFixture(t, "vanilla", config.DeployConfig{WorldContainer: config.WorldContainerRoot})
	dp := component.Component{Kind: component.Datapack, Name: "d", Source: component.LocalSource{Path: "x"}}
	batch := f.orch.Run(context.Background(), []component.Component{dp}, Options{})
	assert.Equal(t, "unsupported on vanilla", batch.Outcomes[0].Message)
}

func TestRun_ResolveTimeout(t *testing.T) {
	f := newFixture(t, "paper", paper)
	rec := &recorder{}
	f.orch.Status = rec
	f.orch.ResolveNotice = 10 * time.Millisecond
	f.orch.ResolveTimeout = 100 * time.Millisecond
	f.orch.Sources = resolverFunc(func(ctx context.Context, c component.Component, _ source.Options) (source.Result, error) {
		<-ctx.Done()
		return source.Result{}, fmt.Errorf("%w: %w", source.ErrSourceUnavailable, ctx.Err())
	})

	batch := f.orch.Run(context.Background(), []component.Component{localPlugin("slow", "x")}, Options{})
	out := batch.Outcomes[0]
	assert.Equal(t, "source unavailable", out.Message)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.True(t, rec.saw("pl:slow", "still resolving"))
}

func TestRun_BuildAndLocateFailures(t *testing.T) {
	f := newFixture(t, "paper", paper)
	f.write(t, "src/p/readme.txt", "no jar here")
	f.write(t, "src/q/q-1.0.jar", "q")

	p := localPlugin("p", "src/p")
	q := localPlugin("q", "src/q")
	q.Artifact.Pattern = `-all\.jar$`
	r := localPlugin("r", "src/q")
	r.Build = component.CustomBuild{Command: "make"} // no runner image configured

	batch := f.orch.Run(context.Background(), []component.Component{p, q, r}, Options{})
	require.Equal(t, 3, batch.Failed())
	assert.Equal(t, "artifact missing", batch.Outcomes[0].Message)
	assert.Equal(t, status.PhaseLocating, batch.Outcomes[0].Phase)
	assert.Equal(t, "artifact ambiguous", batch.Outcomes[1].Message)
	assert.Equal(t, "build failed", batch.Outcomes[2].Message)
	assert.ErrorIs(t, batch.Outcomes[2].Err, build.ErrBuildFailed)
	assert.Empty(t, f.orch.Manifest.IDs())
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, "paper", paper)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch := f.orch.Run(ctx, []component.Component{localPlugin("p", "x")}, Options{})
	assert.Equal(t, "cancelled", batch.Outcomes[0].Message)
}

func TestLayout(t *testing.T) {
	l := Layout{Root: "/srv", Rules: paper}
	assert.Equal(t, "/srv/world", l.Dir(component.World))
	assert.Equal(t, "/srv/world/datapacks", l.Dir(component.Datapack))
	assert.Equal(t, "/srv/resourcepacks", l.Dir(component.Resourcepack))
	assert.Equal(t, "/srv/plugins", l.Dir(component.Plugin))
	assert.Equal(t, "/srv/mods", l.Dir(component.Mod))

	l.Rules.WorldContainer = config.WorldContainerWorlds
	l.LevelName = "survival"
	assert.Equal(t, "/srv/worlds/survival/datapacks", l.Dir(component.Datapack))
	assert.True(t, l.Supports(component.Plugin))
	assert.False(t, l.Supports(component.Mod))
}

func TestLevelName(t *testing.T) {
	dir := t.TempDir()
	name, err := LevelName(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultLevelName, name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ServerProperties), []byte("level-name=\n"), 0o644))
	name, err = LevelName(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultLevelName, name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ServerProperties), []byte("#comment\nlevel-name = creative\n"), 0o644))
	name, err = LevelName(dir)
	require.NoError(t, err)
	assert.Equal(t, "creative", name)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) saw(name, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if strings.HasPrefix(e, name+"|") && strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) Start(name string, phase status.Phase, msg string)  { r.add(name + "|start|" + string(phase) + "|" + msg) }
func (r *recorder) Update(name string, phase status.Phase, msg string) { r.add(name + "|update|" + string(phase) + "|" + msg) }
func (r *recorder) Succeed(name, msg string)                           { r.add(name + "|ok|" + msg) }
func (r *recorder) Fail(name string, phase status.Phase, msg string)   { r.add(name + "|fail|" + string(phase) + "|" + msg) }
func (r *recorder) Log(name, line string)                              { r.add(name + "|log|" + line) }
func (r *recorder) Close()                                             {}

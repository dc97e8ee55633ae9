// Command confd-backend is the daemon entrypoint: it owns the datastores,
// the plugin registry, the commit engine, and the control socket that
// pkg/session and pkg/netconf talk to (spec.md §1/§2).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sdcio/confd/pkg/cerr"
	"github.com/sdcio/confd/pkg/commit"
	"github.com/sdcio/confd/pkg/confdctx"
	"github.com/sdcio/confd/pkg/config"
	"github.com/sdcio/confd/pkg/eventloop"
	"github.com/sdcio/confd/pkg/lock"
	"github.com/sdcio/confd/pkg/metrics"
	"github.com/sdcio/confd/pkg/notify"
	"github.com/sdcio/confd/pkg/plugin"
	"github.com/sdcio/confd/pkg/schema"
	"github.com/sdcio/confd/pkg/session"
	"github.com/sdcio/confd/pkg/storage"
	"github.com/sdcio/confd/pkg/store"
	"github.com/sdcio/confd/pkg/xmltree"
)

func main() {
	var cfg *config.Config
	root := &cobra.Command{
		Use:           "confd-backend",
		Short:         "confd-backend runs the configuration management daemon core",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	cfg = config.Flags(root.Flags())

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Errorf("confd-backend: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.ConfigFile != "" {
		if err := config.LoadFile(cfg.ConfigFile, cfg); err != nil {
			return err
		}
	}
	if cfg.KillAndExit {
		return zapAndExit(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if !cfg.Foreground {
		log.Info("confd-backend: -F not set; running in foreground anyway (daemonization is plumbing, spec.md §1)")
	}

	sch, err := schema.Load(cfg.YangDir, cfg.SchemaModule)
	if err != nil {
		return cerr.Schema(err, "load %s from %s", cfg.SchemaModule, cfg.YangDir)
	}
	if cfg.PrintSchema {
		for _, m := range sch.Modules() {
			fmt.Println(m)
		}
		return nil
	}

	storagePlugin, err := newStoragePlugin(cfg.StoragePlugin)
	if err != nil {
		return cerr.Config("%v", err)
	}
	st, err := store.New(ctx, storagePlugin, cfg.DBDir)
	if err != nil {
		return cerr.Database(err, "open store at %s", cfg.DBDir)
	}

	if err := ensureDatastores(st, cfg); err != nil {
		return err
	}

	locks := lock.NewManager()
	plugins := plugin.NewRegistry()
	bus := notify.NewBus()
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	cc := confdctx.New(cfg, st, locks, plugins, bus, sch, met)

	log.AddHook(notify.NewLogHook(bus))

	if err := plugins.LoadDir(cfg.PluginDir); err != nil {
		return cerr.Plugin(err, "load plugin dir %s", cfg.PluginDir)
	}
	if err := plugins.Init(ctx); err != nil {
		return cerr.Plugin(err, "plugin init")
	}
	if err := plugins.Start(ctx, os.Args); err != nil {
		return cerr.Plugin(err, "plugin start")
	}

	if cfg.ResetRunning {
		if err := plugins.Reset(ctx, "running"); err != nil {
			return cerr.Plugin(err, "reset running")
		}
	}
	if cfg.ResetCandidate {
		if err := resetCandidateAndCommit(ctx, plugins, cc.Commit); err != nil {
			return err
		}
	}
	if cfg.AppConfigFile != "" {
		if err := loadAppConfig(ctx, st, cc.Commit, cfg.AppConfigFile); err != nil {
			return err
		}
	}
	if cfg.ReloadRunning {
		reloadRunning(ctx, cc.Commit, cfg.StrictReload)
	}

	mgr := session.NewManager(cc)
	bus.OnSendFailure(mgr.Destroy)
	ln, err := mgr.Listen(cfg.SocketPath, cfg.SocketGroup)
	if err != nil {
		return cerr.Unix(err, "listen on %s", cfg.SocketPath)
	}

	if err := writePidFile(cfg.PidFile); err != nil {
		return cerr.Unix(err, "write pid file %s", cfg.PidFile)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg)
	}

	poller, err := eventloop.NewPlatformPoller()
	if err != nil {
		return cerr.Unix(err, "create poller")
	}
	loop := eventloop.New(poller)
	srv := session.NewServer(cc, mgr, ln)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := srv.Register(runCtx, loop); err != nil {
		return cerr.Unix(err, "register listener with event loop")
	}
	loop.OnShutdown(func() { plugins.Exit(context.Background()) })
	loop.OnShutdown(func() { _ = os.Remove(cfg.PidFile) })
	loop.OnShutdown(func() { _ = os.Remove(cfg.SocketPath) })

	log.Infof("confd-backend: listening on %s", cfg.SocketPath)

	if cfg.RunOnce {
		return loop.StepOnce()
	}
	return loop.Run(runCtx)
}

// ensureDatastores recreates running and candidate according to spec.md §3's
// reset policy ("running and candidate exist for the daemon's lifetime,
// recreated on startup according to reset policy") and -I's cold-start
// semantics (spec.md §8 scenario 1).
func ensureDatastores(st *store.Manager, cfg *config.Config) error {
	if cfg.InitRunning {
		if err := st.InitDB("running"); err != nil {
			return cerr.Database(err, "init running")
		}
		if err := st.InitDB("candidate"); err != nil {
			return cerr.Database(err, "init candidate")
		}
		return nil
	}
	for _, db := range []string{"running", "candidate"} {
		ok, err := st.Exists(db)
		if err != nil {
			return cerr.Database(err, "exists %s", db)
		}
		if !ok {
			if err := st.Create(db); err != nil {
				return cerr.Database(err, "create %s", db)
			}
		}
	}
	return nil
}

// resetCandidateAndCommit implements the supplemented -C feature
// (SPEC_FULL.md §10): reset state into candidate via the plugins, then
// commit candidate into running, the way the original's candb_reset does.
func resetCandidateAndCommit(ctx context.Context, plugins *plugin.Registry, eng *commit.Engine) error {
	if err := plugins.Reset(ctx, "candidate"); err != nil {
		return cerr.Plugin(err, "reset candidate")
	}
	res := eng.Commit(ctx, 0, "candidate", "running")
	if res.Err != nil {
		return res.Err
	}
	return nil
}

// loadAppConfig implements the supplemented -c feature (SPEC_FULL.md §10):
// load path's top-level XML element into a transient "tmp" datastore and
// commit it into running, mirroring backend_main.c's rundb_main path.
func loadAppConfig(ctx context.Context, st *store.Manager, eng *commit.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cerr.Config("read app config %s: %v", path, err)
	}
	tree, err := xmltree.ParseXML(data)
	if err != nil {
		return cerr.New(cerr.ClassXML, "parse app config %s: %v", path, err)
	}
	if err := st.InitDB("tmp"); err != nil {
		return cerr.Database(err, "init tmp")
	}
	if err := st.Put("tmp", xmltree.OpReplace, "/", tree); err != nil {
		return cerr.Database(err, "load app config into tmp")
	}
	res := eng.Commit(ctx, 0, "tmp", "running")
	if derr := st.Delete("tmp"); derr != nil && !storage.IsNotFound(derr) {
		log.Warnf("confd-backend: cleanup tmp datastore: %v", derr)
	}
	if res.Err != nil {
		return res.Err
	}
	return nil
}

// reloadRunning implements -r. Per SPEC_FULL.md §9 Open Question 2, a
// failed validation here is only fatal in --strict-reload mode; by default
// it is logged at WARN and otherwise ignored, preserving the original's
// "void it, so we dont commit candidate below" behavior but making it
// operator-visible.
func reloadRunning(ctx context.Context, eng *commit.Engine, strict bool) {
	res := eng.Validate(ctx, 0, "candidate", "running")
	if res.Err == nil {
		return
	}
	if strict {
		log.Fatalf("confd-backend: reload-running: validation failed (--strict-reload): %v", res.Err)
	}
	log.Warnf("confd-backend: reload-running: validation failed, continuing without committing candidate: %v", res.Err)
}

func newStoragePlugin(name string) (storage.Plugin, error) {
	switch name {
	case "", "file":
		return storage.NewFilePlugin(), nil
	default:
		return nil, fmt.Errorf("unknown storage plugin %q (only the bundled \"file\" backend ships with this core; spec.md §1 treats the backend as pluggable)", name)
	}
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// zapAndExit implements -z: the supplemented "zap-and-exit" feature of
// SPEC_FULL.md §10, grounded on backend_main.c's zap handling. It signals
// the daemon named by pidPath's contents and, if the process is already
// gone, cleans up the stale pid file.
func zapAndExit(cfg *config.Config) error {
	data, err := os.ReadFile(cfg.PidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cerr.Unix(err, "read pid file %s", cfg.PidFile)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return cerr.Config("malformed pid file %s", cfg.PidFile)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			_ = os.Remove(cfg.PidFile)
			_ = os.Remove(cfg.SocketPath)
			return nil
		}
		return cerr.Unix(err, "signal pid %d", pid)
	}
	log.Infof("confd-backend: sent SIGTERM to running daemon (pid %d)", pid)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnf("confd-backend: metrics server: %v", err)
	}
}

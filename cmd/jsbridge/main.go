package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	jsbridge "github.com/wippyai/js-bridge"
	"github.com/wippyai/js-bridge/config"
	"github.com/wippyai/js-bridge/engine"
	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/message"
	"github.com/wippyai/js-bridge/metrics"
	"github.com/wippyai/js-bridge/resolver"
	"github.com/wippyai/js-bridge/wasmmod"
	"github.com/wippyai/js-bridge/watch"
)

// argList collects a repeatable flag.
type argList []string

func (a *argList) String() string { return strings.Join(*a, " ") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

type options struct {
	configPath  string
	modulePath  string
	name        string
	funcName    string
	initArgs    argList
	callArgs    argList
	list        bool
	watch       bool
	interactive bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to YAML configuration")
	flag.StringVar(&opts.modulePath, "module", "", "Path to the script module")
	flag.StringVar(&opts.name, "name", "", "Module name (default: file name without extension)")
	flag.StringVar(&opts.funcName, "func", "", "Function to call (optional)")
	flag.Var(&opts.initArgs, "init-arg", "Argument passed to init, as T:V (repeatable)")
	flag.Var(&opts.callArgs, "arg", "Argument passed to the function, as T:V (repeatable)")
	flag.BoolVar(&opts.list, "list", false, "List module functions and exit")
	flag.BoolVar(&opts.watch, "watch", false, "Reload the module when its files change")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if opts.modulePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: jsbridge -module <file.mjs> [-name n] [-init-arg T:V]... [-func f] [-arg T:V]...")
		fmt.Fprintln(os.Stderr, "       jsbridge -module <file.mjs> -list")
		fmt.Fprintln(os.Stderr, "       jsbridge -module <file.mjs> -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "Argument types: s string, i int32, d double, b bool, x hex bytes, n none")
		os.Exit(1)
	}
	if opts.name == "" {
		opts.name = moduleName(opts.modulePath)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigWithEnvOverrides(path)
	}
	return config.FromEnv()
}

// session is an initialized engine with its module registered and a
// port whose messages are printed to out.
type session struct {
	engine  *engine.Engine
	port    *message.ChanPort
	metrics *metrics.Server
	cfg     *config.Config
	log     *zap.Logger
	wg      sync.WaitGroup
}

func openSession(ctx context.Context, opts options, out io.Writer) (*session, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.interactive {
		// Keep log lines off the TUI screen.
		cfg.Logging.Level = "error"
	}
	log, err := config.BuildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	engine.SetLogger(log.Named("engine"))
	resolver.SetLogger(log.Named("resolver"))
	marshal.SetLogger(log.Named("marshal"))
	wasmmod.SetLogger(log.Named("wasmmod"))
	watch.SetLogger(log.Named("watch"))

	initArgs, err := marshal.ParseArgs(opts.initArgs)
	if err != nil {
		return nil, fmt.Errorf("init-arg: %w", err)
	}

	collector := cfg.NewCollector()
	s := &session{port: message.NewChanPort(256), cfg: cfg, log: log}
	s.engine = engine.New(cfg.EngineOptions(log, collector)...)
	if err := s.engine.Init(ctx, engine.HostAPI{Version: jsbridge.API(), Port: s.port}); err != nil {
		_ = s.engine.Dispose()
		return nil, err
	}
	if s.metrics, err = cfg.ServeMetrics(collector); err != nil {
		_ = s.engine.Dispose()
		return nil, err
	}
	if s.metrics != nil {
		log.Info("serving metrics", zap.String("addr", s.metrics.Addr()), zap.String("path", cfg.Metrics.Path))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for m := range s.port.C() {
			fmt.Fprintln(out, formatMessage(m))
		}
	}()

	if err := s.engine.Register(ctx, opts.name, opts.modulePath, initArgs); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	_ = s.engine.Dispose()
	_ = s.metrics.Close(context.Background())
	s.port.Close()
	s.wg.Wait()
	_ = s.log.Sync()
}

func run(opts options) error {
	if opts.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode requires a terminal")
		}
		return runInteractive(opts)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, opts, os.Stdout)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Printf("Module: %s (%s)\n", opts.name, opts.modulePath)
	fmt.Printf("Runtime: %s, api %s\n", jsbridge.Version, jsbridge.API())

	if opts.list || opts.funcName == "" {
		fns, err := s.engine.Functions(ctx, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("\nFunctions:")
		for _, fn := range fns {
			fmt.Printf("  %s\n", fn)
		}
		if opts.list {
			return nil
		}
	}

	if opts.funcName != "" {
		args, err := marshal.ParseArgs(opts.callArgs)
		if err != nil {
			return fmt.Errorf("arg: %w", err)
		}
		result, err := s.engine.Invoke(ctx, opts.name, opts.funcName, 0, args)
		if err != nil {
			return fmt.Errorf("call %s: %w", opts.funcName, err)
		}
		fmt.Printf("\nResult: %s\n", formatValue(result))
	}

	if opts.watch || s.cfg.Watch.Enabled {
		return watchModule(ctx, s, opts)
	}
	return nil
}

func watchModule(ctx context.Context, s *session, opts options) error {
	w, err := watch.New(s.cfg.Watch.Debounce, watch.WithPackagesDir(s.cfg.Engine.PackagesDir))
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(opts.name, opts.modulePath); err != nil {
		return err
	}
	fmt.Println("\nWatching for changes, press Ctrl+C to stop.")
	return w.Run(ctx, s.engine)
}

func formatMessage(m message.Message) string {
	switch m.Kind {
	case message.KindString:
		return "message: " + m.Text
	case message.KindStructured:
		s, err := message.DecodeStructured(m.Data)
		if err != nil {
			return fmt.Sprintf("message #%d: undecodable structured payload: %v", m.CallbackID, err)
		}
		return fmt.Sprintf("message #%d: %s", m.CallbackID, formatValue(s.Data))
	default:
		if env, err := message.DecodeEnvelope(m.Data); err == nil && (env.Done || env.Data != nil || env.Error != "") {
			switch {
			case env.Error != "":
				return fmt.Sprintf("message #%d: error: %s", m.CallbackID, env.Error)
			case env.Done:
				return fmt.Sprintf("message #%d: value %q (done)", m.CallbackID, env.Data)
			default:
				return fmt.Sprintf("message #%d: chunk %q", m.CallbackID, env.Data)
			}
		}
		return fmt.Sprintf("message #%d: %d bytes %s", m.CallbackID, len(m.Data), hex.EncodeToString(m.Data))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

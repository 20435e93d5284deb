// cmd/freshet/main.go
//
// This is the entry point for the freshet CLI.
//
// Flow:
// 1. Resolve the project directory (cwd unless -project is given)
// 2. Initialize the .freshet folder on demand
// 3. Dispatch the subcommand against the process registry and record store

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/freshet-io/freshet/internal/archive"
	"github.com/freshet-io/freshet/internal/config"
	"github.com/freshet-io/freshet/internal/data"
	"github.com/freshet-io/freshet/internal/engine"
	"github.com/freshet-io/freshet/internal/executor"
	"github.com/freshet-io/freshet/internal/expression"
	"github.com/freshet-io/freshet/internal/logging"
	"github.com/freshet-io/freshet/internal/process"
	"github.com/freshet-io/freshet/internal/process/goproc"
	"github.com/freshet-io/freshet/internal/tui"
)

const usageText = `freshet - template-driven process runner

Usage:
  freshet init                     create the .freshet project layout
  freshet register [flags] <path>  validate and install process definitions
  freshet list                     list registered processes
  freshet show <slug>              print a process definition as YAML
  freshet render [flags] <slug>    print the rendered script without running it
  freshet run [flags] <slug>       execute a process and persist the record
  freshet monitor                  open the record monitor

Common flags:
  -project <dir>   project directory (defaults to cwd)

Run 'freshet <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "init":
		err = runInit(args)
	case "register":
		err = runRegister(args)
	case "list":
		err = runList(args)
	case "show":
		err = runShow(args)
	case "render":
		err = runRender(args)
	case "run":
		err = runRun(args)
	case "monitor":
		err = runMonitor(args)
	case "-h", "--help", "help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usageText)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "freshet: %v\n", err)
		os.Exit(1)
	}
}

type runtime struct {
	cfg      *config.Config
	registry *process.Registry
	store    *data.Store
	logger   *logging.Logger
}

func (r *runtime) Close() {
	if r.logger != nil {
		_ = r.logger.Close()
	}
}

func projectFlag(fs *flag.FlagSet) *string {
	return fs.String("project", "", "project directory (defaults to cwd)")
}

func resolveProject(project string) (string, error) {
	if strings.TrimSpace(project) == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		project = cwd
	}
	return filepath.Abs(project)
}

// newRuntime initializes the project layout and loads every registered
// process: the builtin archiver, YAML descriptors, and Go definitions.
func newRuntime(project string) (*runtime, error) {
	dir, err := resolveProject(project)
	if err != nil {
		return nil, err
	}
	if err := config.InitProjectDir(dir); err != nil {
		return nil, fmt.Errorf("init %s: %w", config.FreshetDir, err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(dir)
	if err != nil {
		logger = nil
	}

	registry := process.NewRegistry()
	registry.MustRegister(archive.Definition())

	yamlDefs, err := process.LoadDir(cfg.ProcessesDir())
	if err != nil {
		return nil, err
	}
	if err := registry.RegisterAll(yamlDefs, true); err != nil {
		return nil, err
	}
	goDefs, err := goproc.LoadDir(cfg.ProcessesDir())
	if err != nil {
		return nil, err
	}
	if err := registry.RegisterAll(goDefs, true); err != nil {
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		registry: registry,
		store:    data.NewStore(cfg.DataDir()),
		logger:   logger,
	}, nil
}

func (r *runtime) newEngine() (*engine.Engine, error) {
	opts := []engine.Option{
		engine.WithLogger(r.logger),
		engine.WithMaxParallel(r.cfg.MaxParallel()),
	}
	if r.cfg.ExecutorMode() == "docker" {
		opts = append(opts, engine.WithExecutor(executor.NewDocker(r.cfg.ExecutorImage())))
	}
	return engine.New(r.registry, expression.NewRegistry(), r.store, opts...)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	project := projectFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir, err := resolveProject(*project)
	if err != nil {
		return err
	}
	if err := config.InitProjectDir(dir); err != nil {
		return err
	}
	fmt.Printf("Initialized %s in %s\n", config.FreshetDir, dir)
	return nil
}

func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	project := projectFlag(fs)
	force := fs.Bool("force", false, "replace an already registered version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("register requires a process file or directory")
	}
	rt, err := newRuntime(*project)
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, path := range fs.Args() {
		defs, err := loadDefinitions(path)
		if err != nil {
			return err
		}
		if len(defs) == 0 {
			return fmt.Errorf("no process definitions found in %s", path)
		}
		for _, def := range defs {
			if err := rt.registry.Register(def.Process, *force); err != nil {
				return err
			}
		}
		if err := installDefinitionFiles(rt.cfg.ProcessesDir(), defs); err != nil {
			return err
		}
		for _, def := range defs {
			fmt.Printf("Registered %s %s (%s)\n", def.Process.Slug, def.Process.Version, def.Process.Type)
			if rt.logger != nil {
				rt.logger.Printf("registered %s %s from %s", def.Process.Slug, def.Process.Version, path)
			}
		}
	}
	return nil
}

func loadDefinitions(path string) ([]process.DefinitionFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if info.IsDir() {
		yamlDefs, err := process.LoadDir(path)
		if err != nil {
			return nil, err
		}
		goDefs, err := goproc.LoadDir(path)
		if err != nil {
			return nil, err
		}
		return append(yamlDefs, goDefs...), nil
	}
	if strings.HasSuffix(path, ".go") {
		return goproc.LoadFile(path)
	}
	return process.LoadFile(path)
}

// installDefinitionFiles copies the source files into the project's
// processes directory so future invocations pick them up.
func installDefinitionFiles(processesDir string, defs []process.DefinitionFile) error {
	seen := map[string]struct{}{}
	for _, def := range defs {
		src := filepath.Clean(def.Path)
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		dst := filepath.Join(processesDir, filepath.Base(src))
		if dst == src {
			continue
		}
		payload, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}
		if err := os.WriteFile(dst, payload, 0o644); err != nil {
			return fmt.Errorf("install %s: %w", dst, err)
		}
	}
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	project := projectFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := newRuntime(*project)
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, slug := range rt.registry.Slugs() {
		proc, err := rt.registry.Resolve(slug)
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %-10s %s\n", proc.Slug, proc.Version, proc.Type)
	}
	return nil
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	project := projectFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("show requires exactly one process slug")
	}
	rt, err := newRuntime(*project)
	if err != nil {
		return err
	}
	defer rt.Close()

	proc, err := rt.registry.Resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	payload, err := yaml.Marshal(proc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", proc.Slug, err)
	}
	fmt.Print(string(payload))
	return nil
}

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	project := projectFlag(fs)
	inputs := inputFlag{}
	fs.Var(&inputs, "input", "process input (name=value, repeatable; value parsed as YAML)")
	inputFile := fs.String("input-file", "", "YAML file with process inputs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("render requires exactly one process slug")
	}
	rt, err := newRuntime(*project)
	if err != nil {
		return err
	}
	defer rt.Close()

	input, err := buildInput(*inputFile, inputs)
	if err != nil {
		return err
	}
	eng, err := rt.newEngine()
	if err != nil {
		return err
	}
	script, err := eng.Render(engine.RunRequest{Slug: fs.Arg(0), Input: input})
	if err != nil {
		return err
	}
	fmt.Println(script)
	return nil
}

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	project := projectFlag(fs)
	name := fs.String("name", "", "record name (defaults to the process data_name)")
	inputs := inputFlag{}
	fs.Var(&inputs, "input", "process input (name=value, repeatable; value parsed as YAML)")
	inputFile := fs.String("input-file", "", "YAML file with process inputs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run requires exactly one process slug")
	}
	rt, err := newRuntime(*project)
	if err != nil {
		return err
	}
	defer rt.Close()

	input, err := buildInput(*inputFile, inputs)
	if err != nil {
		return err
	}
	eng, err := rt.newEngine()
	if err != nil {
		return err
	}
	record, runErr := eng.Run(context.Background(), engine.RunRequest{
		Slug:  fs.Arg(0),
		Name:  *name,
		Input: input,
	})
	if record.ID != "" {
		fmt.Printf("Record: %s\n", record.ID)
		fmt.Printf("Status: %s\n", record.Status)
	}
	if runErr != nil {
		return runErr
	}
	if len(record.Output) > 0 {
		payload, err := yaml.Marshal(record.Output)
		if err != nil {
			return err
		}
		fmt.Printf("Outputs:\n%s", indentLines(string(payload), "  "))
	}
	return nil
}

func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	project := projectFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := newRuntime(*project)
	if err != nil {
		return err
	}
	defer rt.Close()
	return tui.Run(rt.store, rt.registry, tui.WithMonitorLogger(rt.logger))
}

func buildInput(inputFile string, overrides inputFlag) (map[string]any, error) {
	input := map[string]any{}
	if path := strings.TrimSpace(inputFile); path != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read input file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(payload, &input); err != nil {
			return nil, fmt.Errorf("parse input file %s: %w", path, err)
		}
		if input == nil {
			input = map[string]any{}
		}
	}
	for key, value := range overrides {
		input[key] = value
	}
	if len(input) == 0 {
		return nil, nil
	}
	return input, nil
}

func indentLines(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}

// inputFlag collects repeatable name=value pairs; values go through the
// YAML parser so numbers, booleans, and lists arrive typed.
type inputFlag map[string]any

func (f *inputFlag) String() string {
	if f == nil || len(*f) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *f {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, value))
	}
	return strings.Join(pairs, ", ")
}

func (f *inputFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected name=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("input name is empty in %q", value)
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(parts[1]), &parsed); err != nil {
		parsed = parts[1]
	}
	if *f == nil {
		*f = inputFlag{}
	}
	(*f)[key] = parsed
	return nil
}

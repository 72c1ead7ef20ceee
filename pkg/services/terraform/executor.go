package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"al.essio.dev/pkg/shellescape"
	"github.com/hashicorp/terraform-exec/tfexec"
	"github.com/rs/zerolog"
)

const (
	DefaultBinary     = "terraform"
	DefaultWorkingDir = "terraform"
)

type Options struct {
	BinaryPath string
	WorkingDir string
	Env        []string
	Runner     Runner
}

type Executor struct {
	binaryPath string
	workingDir string
	env        []string
	runner     Runner
}

func NewExecutor(opts Options) *Executor {
	if opts.BinaryPath == "" {
		opts.BinaryPath = DefaultBinary
	}
	if opts.WorkingDir == "" {
		opts.WorkingDir = DefaultWorkingDir
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner(nil)
	}

	return &Executor{
		binaryPath: opts.BinaryPath,
		workingDir: opts.WorkingDir,
		env:        append([]string{"TF_IN_AUTOMATION=true"}, opts.Env...),
		runner:     opts.Runner,
	}
}

func (e *Executor) WorkingDir() string {
	return e.workingDir
}

func (e *Executor) Init(ctx context.Context) (Result, error) {
	return e.run(ctx, false, "init")
}

func (e *Executor) Plan(ctx context.Context, vars map[string]any, varFile string) (Result, error) {
	return e.runWithVars(ctx, vars, varFile, "plan")
}

func (e *Executor) Apply(ctx context.Context, vars map[string]any, varFile string) (Result, error) {
	return e.runWithVars(ctx, vars, varFile, "apply", "-auto-approve")
}

func (e *Executor) Destroy(ctx context.Context, vars map[string]any, varFile string) (Result, error) {
	return e.runWithVars(ctx, vars, varFile, "destroy", "-auto-approve")
}

// Output runs `terraform output -json` and decodes the outputs keyed by name.
func (e *Executor) Output(ctx context.Context) (map[string]tfexec.OutputMeta, error) {
	result, err := e.run(ctx, true, "output", "-json")
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		return nil, fmt.Errorf("terraform output exited with code %d: %s", result.ExitCode, result.Stderr)
	}
	return ParseOutputs([]byte(result.Stdout))
}

func (e *Executor) runWithVars(ctx context.Context, vars map[string]any, varFile string, args ...string) (Result, error) {
	varArgs, err := VarArgs(vars, varFile)
	if err != nil {
		return Result{}, err
	}
	return e.run(ctx, false, append(args, varArgs...)...)
}

func (e *Executor) run(ctx context.Context, quiet bool, args ...string) (Result, error) {
	logger := zerolog.Ctx(ctx)
	cmd := Command{
		Dir:   e.workingDir,
		Env:   e.env,
		Name:  e.binaryPath,
		Args:  args,
		Quiet: quiet,
	}

	logger.Debug().
		Str("dir", e.workingDir).
		Str("command", shellescape.QuoteCommand(append([]string{e.binaryPath}, args...))).
		Msg("running terraform")

	result, err := e.runner.Run(ctx, cmd)
	if err != nil {
		logger.Warn().Err(err).Str("subcommand", args[0]).Msg("failed to run terraform")
		return result, err
	}
	if !result.Success() {
		logger.Warn().
			Int("exit_code", result.ExitCode).
			Str("subcommand", args[0]).
			Str("stderr", result.Stderr).
			Msg("terraform exited with a non-zero code")
	}
	return result, nil
}

// VarArgs renders variables as `-var key=value` pairs in key order. Maps, slices
// and structs are JSON encoded so terraform parses them as complex values.
func VarArgs(vars map[string]any, varFile string) ([]string, error) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys)+2)
	for _, k := range keys {
		value, err := formatVar(vars[k])
		if err != nil {
			return nil, fmt.Errorf("failed to encode terraform variable %s: %w", k, err)
		}
		args = append(args, "-var", fmt.Sprintf("%s=%s", k, value))
	}
	if varFile != "" {
		args = append(args, "-var-file", varFile)
	}
	return args, nil
}

func formatVar(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(v), nil
	}
}

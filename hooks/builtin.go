package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/initializ/stepforge/pipeline"
	"github.com/initializ/stepforge/types"
)

const defaultExecTimeout = 30 * time.Second

// newSetHook copies every with entry into the bag.
func newSetHook(ref types.HookRef, env Env) (pipeline.Hook, error) {
	if len(ref.With) == 0 {
		return nil, fmt.Errorf("with must contain at least one property")
	}
	props := make(map[string]any, len(ref.With))
	for k, v := range ref.With {
		props[k] = v
	}
	return pipeline.Func(ref.DisplayName(), func(ctx context.Context, bag *pipeline.Bag) error {
		for k, v := range props {
			bag.Set(k, v)
		}
		return nil
	}), nil
}

// newRequireHook fails unless every key in with.keys is present.
func newRequireHook(ref types.HookRef, env Env) (pipeline.Hook, error) {
	keys, err := stringsArg(ref.With, "keys")
	if err != nil {
		return nil, err
	}
	return pipeline.Func(ref.DisplayName(), func(ctx context.Context, bag *pipeline.Bag) error {
		var missing []string
		for _, k := range keys {
			if !bag.Has(k) {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required properties: %s", strings.Join(missing, ", "))
		}
		return nil
	}), nil
}

// newEnvHook copies the environment variables named in with.vars into the
// bag. Unset variables are skipped unless with.required lists them.
func newEnvHook(ref types.HookRef, env Env) (pipeline.Hook, error) {
	vars, err := stringsArg(ref.With, "vars")
	if err != nil {
		return nil, err
	}
	required, err := stringsArg(ref.With, "required")
	if err != nil {
		return nil, err
	}
	return pipeline.Func(ref.DisplayName(), func(ctx context.Context, bag *pipeline.Bag) error {
		for _, name := range slices.Concat(vars, required) {
			if v, ok := os.LookupEnv(name); ok {
				bag.Set(name, v)
			}
		}
		for _, name := range required {
			if !bag.Has(name) {
				return fmt.Errorf("environment variable %s is not set", name)
			}
		}
		return nil
	}), nil
}

// newExecHook runs with.command through sh -c. The step name and index are
// exported to the command as STEPFORGE_STEP and STEPFORGE_STEP_INDEX. Output
// and exit code are stored in the bag under "<name>.stdout" and
// "<name>.exit_code"; a non-zero exit fails the hook.
func newExecHook(ref types.HookRef, env Env) (pipeline.Hook, error) {
	command, err := stringArg(ref.With, "command", true)
	if err != nil {
		return nil, err
	}
	dir, err := stringArg(ref.With, "dir", false)
	if err != nil {
		return nil, err
	}
	secs, err := intArg(ref.With, "timeout", 0)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(secs) * time.Second
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	workDir := resolvePath(env.WorkDir, dir)
	name := ref.DisplayName()

	return pipeline.Func(name, func(ctx context.Context, bag *pipeline.Bag) error {
		cmdCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
		cmd.Dir = workDir
		cmd.Env = append(cmd.Environ(),
			"STEPFORGE_STEP="+bag.Step(),
			"STEPFORGE_STEP_INDEX="+strconv.Itoa(bag.StepIndex()),
		)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		env.Log.Debug("exec", map[string]any{"command": command, "dir": workDir})
		runErr := cmd.Run()

		out := strings.TrimRight(stdout.String(), "\n")
		bag.Set(name+".stdout", out)
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		bag.Set(name+".exit_code", exitCode)

		if runErr != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("command %q: %w: %s", command, runErr, msg)
			}
			return fmt.Errorf("command %q: %w", command, runErr)
		}
		return nil
	}), nil
}

// newManifestHook writes a JSON snapshot of the bag to with.path.
func newManifestHook(ref types.HookRef, env Env) (pipeline.Hook, error) {
	path, err := stringArg(ref.With, "path", true)
	if err != nil {
		return nil, err
	}
	outPath := resolvePath(env.WorkDir, path)
	name := ref.DisplayName()

	return pipeline.Func(name, func(ctx context.Context, bag *pipeline.Bag) error {
		manifest := map[string]any{
			"written_at": time.Now().UTC().Format(time.RFC3339),
			"step":       bag.Step(),
			"properties": bag.Snapshot(),
		}

		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling manifest: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return fmt.Errorf("creating manifest directory: %w", err)
		}
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}

		bag.Set(name+".path", outPath)
		return nil
	}), nil
}

func resolvePath(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/stewardhq/steward/internal/sandbox/wasm"
	"github.com/stewardhq/steward/internal/tools"
)

// WasmSandbox runs shell-tool commands as pre-compiled WASI skill modules
// instead of spawning a process: the "command" a caller passes is the
// skill's name, resolved to <skillDir>/<name>.wasm and invoked in-process
// via wasm.Host. This is the backend for trusted, dependency-free skill
// scripts (workspace/skills/*.wasm); arbitrary shell commands still need
// DockerSandbox.
type WasmSandbox struct {
	host     *wasm.Host
	skillDir string
	logger   *slog.Logger
}

// NewWasmSandbox builds a WasmSandbox backed by a fresh wasm.Host.
// allowedHosts gates any host.http.get calls skills make; skillDir is
// scanned lazily, one module per Exec call, the first time that skill name
// is invoked.
func NewWasmSandbox(ctx context.Context, skillDir string, allowedHosts []string, logger *slog.Logger) (*WasmSandbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	host, err := wasm.NewHost(ctx, wasm.Config{
		Logger:       logger,
		AllowedHosts: allowedHosts,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: wasm host: %w", err)
	}
	return &WasmSandbox{host: host, skillDir: skillDir, logger: logger}, nil
}

// Exec loads (if not already loaded) and invokes the WASM module named by
// command. workDir and env are ignored: a WASM skill has no filesystem or
// process environment, only the host.http.get/host.log/host.kv.set imports.
// Satisfies internal/tools.Sandbox.
func (w *WasmSandbox) Exec(ctx context.Context, command, workDir string, env map[string]string, timeoutMs int) (tools.Result, error) {
	if timeoutMs <= 0 {
		timeoutMs = 30_000
	}
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	if !w.host.HasModule(command) {
		path := filepath.Join(w.skillDir, command+".wasm")
		if err := w.host.LoadModuleFromFile(execCtx, path); err != nil {
			return tools.Result{Stderr: err.Error(), ExitCode: 1}, nil
		}
	}

	result, err := w.host.InvokeModuleRandom(execCtx, command)
	if err != nil {
		if execCtx.Err() != nil {
			return tools.Result{Stderr: err.Error(), ExitCode: 1, TimedOut: true}, nil
		}
		return tools.Result{Stderr: err.Error(), ExitCode: 1}, nil
	}
	return tools.Result{Stdout: fmt.Sprintf("%d", result), ExitCode: 0}, nil
}

// Close releases the underlying WASM runtime and all loaded modules.
func (w *WasmSandbox) Close(ctx context.Context) error {
	return w.host.Close(ctx)
}

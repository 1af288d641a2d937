package adminclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/scheduler"
)

// Handler executes one command kind and returns the result payload to
// report back to the admin server (spec.md §4.9 step 2).
type Handler func(ctx context.Context, cmd *models.Command) (status models.CommandResultStatus, data map[string]interface{}, message string)

// Dispatcher routes a Command to its handler by kind. Unknown kinds report
// {status: error, message: "unsupported"} per spec.md §6.
type Dispatcher struct {
	scheduler *scheduler.Scheduler
	logger    arbor.ILogger
	handlers  map[models.CommandKind]Handler
}

func NewDispatcher(sched *scheduler.Scheduler, logger arbor.ILogger) *Dispatcher {
	d := &Dispatcher{scheduler: sched, logger: logger}
	d.handlers = map[models.CommandKind]Handler{
		models.CommandPing:             d.handlePing,
		models.CommandGetStatus:        d.handleGetStatus,
		models.CommandListDirectory:    d.handleListDirectory,
		models.CommandReadFile:         d.handleReadFile,
		models.CommandWriteFile:        d.handleWriteFile,
		models.CommandDeleteFile:       d.handleDeleteFile,
		models.CommandCreateFolder:     d.handleCreateFolder,
		models.CommandListProcesses:    d.handleListProcesses,
		models.CommandKillProcess:      d.handleKillProcess,
		models.CommandStorageGetInfo:   d.handleStorageGetInfo,
		models.CommandNetworkGetConfig: d.handleNetworkGetConfig,
		models.CommandNetworkSetConfig: d.handleNetworkSetConfig,
		models.CommandRestart:          d.handleRestart,
		models.CommandUpdateConfig:     d.handleUpdateConfig,
		models.CommandExecuteScript:    d.handleExecuteScript,
		models.CommandScreenshot:       d.handleUnsupported, // requires an active browser session; see DESIGN.md
		models.CommandCameraList:       d.handleUnsupported, // no camera driver in this pack; see DESIGN.md
		models.CommandCameraStart:      d.handleUnsupported,
		models.CommandCameraSnapshot:   d.handleUnsupported,
		models.CommandCameraStop:       d.handleUnsupported,
	}
	return d
}

// Dispatch runs the handler for cmd.Kind and always returns a CommandResult
// (never an error): failures are carried in the result's status/message,
// matching the "each handler returns a structured {status, data|message}"
// rule in spec.md §4.9.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *models.Command) *models.CommandResult {
	handler, ok := d.handlers[cmd.Kind]
	if !ok || !models.KnownCommandKinds[cmd.Kind] {
		return &models.CommandResult{
			CommandID: cmd.ID,
			Status:    models.CommandResultError,
			Message:   "unsupported",
		}
	}

	status, data, message := handler(ctx, cmd)
	return &models.CommandResult{
		CommandID: cmd.ID,
		Status:    status,
		Data:      data,
		Message:   message,
	}
}

func (d *Dispatcher) handleUnsupported(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	return models.CommandResultError, nil, "unsupported"
}

func (d *Dispatcher) handlePing(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	return models.CommandResultSuccess, map[string]interface{}{"pong": true}, ""
}

func (d *Dispatcher) handleGetStatus(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	data := map[string]interface{}{
		"hostname": hostnameOrUnknown(),
		"platform": platformName(),
	}
	if d.scheduler != nil {
		st := d.scheduler.Status()
		data["scheduler_active"] = st.Active
		data["scheduler_degraded"] = st.Degraded
	}
	return models.CommandResultSuccess, data, ""
}

func stringParam(cmd *models.Command, key string) string {
	if cmd.Params == nil {
		return ""
	}
	if v, ok := cmd.Params[key].(string); ok {
		return v
	}
	return ""
}

func (d *Dispatcher) handleListDirectory(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	path := stringParam(cmd, "path")
	if path == "" {
		return models.CommandResultError, nil, "path parameter is required"
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	names := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		info, _ := e.Info()
		size := int64(0)
		if info != nil {
			size = info.Size()
		}
		names = append(names, map[string]interface{}{
			"name":   e.Name(),
			"is_dir": e.IsDir(),
			"size":   size,
		})
	}
	return models.CommandResultSuccess, map[string]interface{}{"entries": names}, ""
}

const maxCommandFileBytes = 5 * 1024 * 1024

func (d *Dispatcher) handleReadFile(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	path := stringParam(cmd, "path")
	if path == "" {
		return models.CommandResultError, nil, "path parameter is required"
	}
	info, err := os.Stat(path)
	if err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	if info.Size() > maxCommandFileBytes {
		return models.CommandResultError, nil, fmt.Sprintf("file exceeds %d byte limit", maxCommandFileBytes)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	return models.CommandResultSuccess, map[string]interface{}{
		"content_base64": base64.StdEncoding.EncodeToString(content),
		"size":           info.Size(),
	}, ""
}

func (d *Dispatcher) handleWriteFile(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	path := stringParam(cmd, "path")
	contentB64 := stringParam(cmd, "content_base64")
	if path == "" {
		return models.CommandResultError, nil, "path parameter is required"
	}
	content, err := base64.StdEncoding.DecodeString(contentB64)
	if err != nil {
		return models.CommandResultError, nil, "content_base64 parameter is invalid"
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	return models.CommandResultSuccess, map[string]interface{}{"bytes_written": len(content)}, ""
}

func (d *Dispatcher) handleDeleteFile(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	path := stringParam(cmd, "path")
	if path == "" {
		return models.CommandResultError, nil, "path parameter is required"
	}
	if err := os.Remove(path); err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	return models.CommandResultSuccess, nil, ""
}

func (d *Dispatcher) handleCreateFolder(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	path := stringParam(cmd, "path")
	if path == "" {
		return models.CommandResultError, nil, "path parameter is required"
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	return models.CommandResultSuccess, nil, ""
}

func (d *Dispatcher) handleStorageGetInfo(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	path := stringParam(cmd, "path")
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	return models.CommandResultSuccess, map[string]interface{}{"path": abs}, ""
}

func (d *Dispatcher) handleNetworkGetConfig(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	return models.CommandResultSuccess, map[string]interface{}{
		"hostname": hostnameOrUnknown(),
		"local_ip": "",
	}, ""
}

func (d *Dispatcher) handleNetworkSetConfig(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	return models.CommandResultError, nil, "network configuration changes are not supported on this platform"
}

func (d *Dispatcher) handleRestart(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	go func() {
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()
	return models.CommandResultSuccess, map[string]interface{}{"restarting": true}, ""
}

func (d *Dispatcher) handleUpdateConfig(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	return models.CommandResultError, nil, "config reload requires a process restart; use the restart command"
}

func (d *Dispatcher) handleExecuteScript(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	script := stringParam(cmd, "script")
	if script == "" {
		return models.CommandResultError, nil, "script parameter is required"
	}
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	shell, flag := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}
	out, err := exec.CommandContext(runCtx, shell, flag, script).CombinedOutput()
	if err != nil {
		return models.CommandResultError, map[string]interface{}{"output": string(out)}, err.Error()
	}
	return models.CommandResultSuccess, map[string]interface{}{"output": string(out)}, ""
}

func (d *Dispatcher) handleListProcesses(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	var out []byte
	var err error
	if runtime.GOOS == "windows" {
		out, err = exec.CommandContext(ctx, "tasklist").Output()
	} else {
		out, err = exec.CommandContext(ctx, "ps", "-eo", "pid,comm").Output()
	}
	if err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return models.CommandResultSuccess, map[string]interface{}{"processes": lines}, ""
}

func (d *Dispatcher) handleKillProcess(ctx context.Context, cmd *models.Command) (models.CommandResultStatus, map[string]interface{}, string) {
	pidStr := stringParam(cmd, "pid")
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return models.CommandResultError, nil, "pid parameter must be an integer"
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	if err := proc.Kill(); err != nil {
		return models.CommandResultError, nil, err.Error()
	}
	return models.CommandResultSuccess, map[string]interface{}{"killed": pid}, ""
}

func hostnameOrUnknown() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return h
}

func platformName() string {
	return runtime.GOOS
}

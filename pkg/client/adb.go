// Package client drives an Android device over adb. ADB is the
// installation backend of a session: it installs, uninstalls, flashes
// modules and reports what the device has installed.
package client

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// remoteStaging is where files are pushed before pm reads them
const remoteStaging = "/data/local/tmp/installerx"

// Runner executes a host command and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Logger is the printf-style logger the client reports through
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Options configures an ADB client
type Options struct {
	// Path of the adb binary
	Path string
	// Serial selects the device; empty means the only connected one
	Serial        string
	Authorizer    models.Authorizer
	ModuleBackend string
	// TempDir receives APKs pulled from the device
	TempDir string
	Runner  Runner
	Logger  Logger
}

// ADB talks to one device
type ADB struct {
	path          string
	serial        string
	authorizer    models.Authorizer
	moduleBackend string
	tempDir       string
	runner        Runner
	logger        Logger

	mu       sync.Mutex
	sessions map[string]string // held pm session id -> remote staging dir
}

// New creates a client
func New(opts Options) *ADB {
	a := &ADB{
		path:          opts.Path,
		serial:        opts.Serial,
		authorizer:    opts.Authorizer,
		moduleBackend: opts.ModuleBackend,
		tempDir:       opts.TempDir,
		runner:        opts.Runner,
		logger:        opts.Logger,
		sessions:      make(map[string]string),
	}
	if a.path == "" {
		a.path = "adb"
	}
	if a.runner == nil {
		a.runner = execRunner{}
	}
	if a.logger == nil {
		a.logger = nopLogger{}
	}
	if a.moduleBackend == "" {
		a.moduleBackend = "magisk"
	}
	return a
}

// Serial returns the serial of the selected device
func (a *ADB) Serial() string {
	return a.serial
}

func (a *ADB) adb(ctx context.Context, args ...string) ([]byte, error) {
	if a.serial != "" {
		args = append([]string{"-s", a.serial}, args...)
	}
	a.logger.Debug("Running: %s %s", a.path, strings.Join(args, " "))
	return a.runner.Run(ctx, a.path, args...)
}

// shell runs a command on the device. Arguments are quoted for the device
// shell, which receives them joined by spaces.
func (a *ADB) shell(ctx context.Context, args ...string) ([]byte, error) {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = shellQuote(arg)
	}
	return a.adb(ctx, append([]string{"shell"}, quoted...)...)
}

func (a *ADB) push(ctx context.Context, local, remote string) error {
	output, err := a.adb(ctx, "push", local, remote)
	if err != nil {
		return fmt.Errorf("adb push failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (a *ADB) removeRemote(ctx context.Context, remote string) {
	if output, err := a.shell(ctx, "rm", "-rf", remote); err != nil {
		a.logger.Debug("Failed to remove %s: %v %s", remote, err, output)
	}
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=,@%+", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Device is one entry of `adb devices -l`
type Device struct {
	ID         string `json:"id" yaml:"id"`
	Status     string `json:"status" yaml:"status"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Product    string `json:"product,omitempty" yaml:"product,omitempty"`
	Device     string `json:"device,omitempty" yaml:"device,omitempty"`
	Transport  string `json:"transport,omitempty" yaml:"transport,omitempty"`
	IsEmulator bool   `json:"is_emulator" yaml:"is_emulator"`
}

// Online reports whether the device accepts commands
func (d Device) Online() bool {
	return d.Status == "device"
}

// Devices lists the devices adb knows about
func (a *ADB) Devices(ctx context.Context) ([]Device, error) {
	output, err := a.runner.Run(ctx, a.path, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to run adb devices: %w", err)
	}
	return parseDevices(string(output)), nil
}

func parseDevices(output string) []Device {
	var devices []Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		device := Device{
			ID:         parts[0],
			Status:     parts[1],
			IsEmulator: strings.HasPrefix(parts[0], "emulator-"),
		}
		for _, part := range parts[2:] {
			key, value, ok := strings.Cut(part, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				device.Model = value
			case "product":
				device.Product = value
			case "device":
				device.Device = value
			case "transport_id":
				device.Transport = value
			}
		}
		devices = append(devices, device)
	}
	return devices
}

// SelectDevice pins the client to a device. A configured serial must be
// online; otherwise exactly one online device must be connected.
func (a *ADB) SelectDevice(ctx context.Context) (Device, error) {
	devices, err := a.Devices(ctx)
	if err != nil {
		return Device{}, err
	}

	if a.serial != "" {
		for _, d := range devices {
			if d.ID != a.serial {
				continue
			}
			switch d.Status {
			case "device":
				return d, nil
			case "unauthorized":
				return Device{}, fmt.Errorf("device %s is unauthorized - please allow USB debugging", d.ID)
			default:
				return Device{}, fmt.Errorf("device %s has status: %s", d.ID, d.Status)
			}
		}
		return Device{}, fmt.Errorf("device %s not found", a.serial)
	}

	var online []Device
	for _, d := range devices {
		if d.Online() {
			online = append(online, d)
		}
	}
	switch len(online) {
	case 0:
		return Device{}, fmt.Errorf("no online devices available")
	case 1:
		a.serial = online[0].ID
		return online[0], nil
	}
	ids := make([]string, len(online))
	for i, d := range online {
		ids[i] = d.ID
	}
	return Device{}, fmt.Errorf("multiple devices connected (%s), pick one with --device", strings.Join(ids, ", "))
}

// Platform reads the device properties the session gates on
func (a *ADB) Platform(ctx context.Context) (models.PlatformContext, error) {
	output, err := a.shell(ctx, "getprop")
	if err != nil {
		return models.PlatformContext{}, fmt.Errorf("failed to read device properties: %w", err)
	}
	props := parseGetprop(string(output))

	p := models.PlatformContext{
		Release:      props["ro.build.version.release"],
		Manufacturer: models.NormalizeManufacturer(props["ro.product.manufacturer"]),
		Model:        props["ro.product.model"],
		Authorizer:   a.authorizer,
	}
	if sdk, err := strconv.Atoi(props["ro.build.version.sdk"]); err == nil {
		p.SDK = sdk
	}

	abis := props["ro.product.cpu.abilist"]
	if abis == "" {
		abis = props["ro.product.cpu.abi"]
	}
	p.ABIs = splitList(abis)

	locales := props["persist.sys.locale"]
	if locales == "" {
		locales = props["ro.product.locale"]
	}
	p.Locales = splitList(locales)

	if density, err := a.density(ctx); err != nil {
		a.logger.Debug("Cannot read screen density: %v", err)
		p.Density, _ = strconv.Atoi(props["ro.sf.lcd_density"])
	} else {
		p.Density = density
	}
	return p, nil
}

// parseGetprop parses `[key]: [value]` lines
func parseGetprop(output string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, "]: [")
		if !ok || !strings.HasPrefix(key, "[") || !strings.HasSuffix(value, "]") {
			continue
		}
		props[key[1:]] = strings.TrimSpace(value[:len(value)-1])
	}
	return props
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// density prefers the override density set in developer options
func (a *ADB) density(ctx context.Context) (int, error) {
	output, err := a.shell(ctx, "wm", "density")
	if err != nil {
		return 0, err
	}
	var physical, override int
	for _, line := range strings.Split(string(output), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		switch key {
		case "Physical density":
			physical = n
		case "Override density":
			override = n
		}
	}
	if override > 0 {
		return override, nil
	}
	if physical > 0 {
		return physical, nil
	}
	return 0, fmt.Errorf("unexpected wm density output: %s", strings.TrimSpace(string(output)))
}

// Authorizer returns the identity installs run with
func (a *ADB) Authorizer() models.Authorizer {
	return a.authorizer
}

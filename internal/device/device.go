// Package device inventories the host's compute resources (CPU, RAM,
// and coarse GPU presence) so the daemon can validate a ModelConfig's
// device selector and enrich the /status diagnostic surface with
// hardware context. Grounded on kennethnrk-Edgernetes-AI's
// internal/agent/utils/gpu.go and utils/memory.go, generalized from a
// shell-out-per-OS device inventory into a gopsutil-backed one for the
// CPU/memory portion, keeping only GPU vendor sniffing as an
// os/exec fallback since gopsutil exposes no GPU accounting.
package device

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Kind classifies one inventoried compute device.
type Kind string

const (
	KindCPU          Kind = "cpu"
	KindGPU          Kind = "gpu"
	KindIntegratedGPU Kind = "integrated_gpu"
)

// Device describes one selectable compute resource, matching the
// vocabulary a ModelConfig.Device selector (e.g. "CPU", "GPU.0",
// "AUTO") is checked against.
type Device struct {
	Selector    string `json:"selector"`
	Kind        Kind   `json:"kind"`
	Vendor      string `json:"vendor,omitempty"`
	Model       string `json:"model,omitempty"`
	MemoryMB    int64  `json:"memory_mb,omitempty"`
	IsAvailable bool   `json:"is_available"`
}

// HostInfo summarizes the machine's aggregate resources for /status.
type HostInfo struct {
	Platform     string   `json:"platform"`
	CPUCores     int      `json:"cpu_cores"`
	TotalMemMB   int64    `json:"total_mem_mb"`
	AvailMemMB   int64    `json:"avail_mem_mb"`
	Devices      []Device `json:"devices"`
}

// Inventory collects the host's compute devices via gopsutil, plus a
// best-effort GPU vendor probe. Never returns an error: any collector
// that fails degrades to zero values rather than failing the caller's
// startup or /status request.
func Inventory(ctx context.Context) HostInfo {
	info := HostInfo{Platform: runtime.GOOS}

	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCores = counts
	} else {
		info.CPUCores = runtime.NumCPU()
	}
	info.Devices = append(info.Devices, Device{
		Selector:    "CPU",
		Kind:        KindCPU,
		IsAvailable: true,
	})

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemMB = int64(vm.Total / (1024 * 1024))
		info.AvailMemMB = int64(vm.Available / (1024 * 1024))
	}

	if _, err := host.InfoWithContext(ctx); err != nil {
		// Host identification is diagnostic only; ignore failures.
		_ = err
	}

	for i, gpu := range probeGPUs() {
		gpu.Selector = "GPU." + strconv.Itoa(i)
		info.Devices = append(info.Devices, gpu)
	}
	return info
}

// Resolve reports whether selector names a device present in inv,
// treating "AUTO" and "CPU" as always satisfiable (spec §4.A device
// selection is opaque to the core; this is a supplemented pre-flight
// check surfaced through PATH_INVALID-adjacent config validation, not
// a spec-mandated invariant).
func Resolve(inv HostInfo, selector string) bool {
	switch strings.ToUpper(selector) {
	case "", "AUTO", "CPU":
		return true
	}
	for _, d := range inv.Devices {
		if strings.EqualFold(d.Selector, selector) {
			return d.IsAvailable
		}
	}
	return false
}

// probeGPUs shells out to nvidia-smi, then lspci, mirroring the
// teacher's per-OS detection but folded into a single Linux-first path
// since the daemon's supported deployment target is Linux containers;
// a missing tool yields no GPUs rather than an error.
func probeGPUs() []Device {
	if gpus := probeNVIDIA(); len(gpus) > 0 {
		return gpus
	}
	return probeLSPCI()
}

func probeNVIDIA() []Device {
	out, err := exec.Command("nvidia-smi", "--query-gpu=name,memory.total", "--format=csv,noheader").Output()
	if err != nil {
		return nil
	}
	var devices []Device
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		d := Device{
			Kind:        KindGPU,
			Vendor:      "nvidia",
			Model:       strings.TrimSpace(parts[0]),
			IsAvailable: true,
		}
		memStr := strings.TrimSuffix(strings.TrimSpace(parts[1]), " MiB")
		if mb, err := strconv.ParseInt(memStr, 10, 64); err == nil {
			d.MemoryMB = mb
		}
		devices = append(devices, d)
	}
	return devices
}

func probeLSPCI() []Device {
	out, err := exec.Command("lspci").Output()
	if err != nil {
		return nil
	}
	var devices []Device
	for _, line := range strings.Split(string(out), "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "vga") && !strings.Contains(lower, "3d controller") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		desc := strings.TrimSpace(parts[len(parts)-1])
		d := Device{
			Kind:        classifyKind(desc),
			Vendor:      detectVendor(desc),
			Model:       desc,
			IsAvailable: true,
		}
		devices = append(devices, d)
	}
	return devices
}

func detectVendor(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "nvidia"):
		return "nvidia"
	case strings.Contains(lower, "amd"), strings.Contains(lower, "radeon"):
		return "amd"
	case strings.Contains(lower, "intel"):
		return "intel"
	default:
		return "unknown"
	}
}

func classifyKind(name string) Kind {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "integrated") || strings.Contains(lower, "uhd") || strings.Contains(lower, "iris") {
		return KindIntegratedGPU
	}
	return KindGPU
}

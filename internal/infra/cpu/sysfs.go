package cpu

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tutu-network/hotplug/internal/domain"
)

// DefaultSysfsRoot is where Linux exposes cpu topology and hotplug controls.
const DefaultSysfsRoot = "/sys/devices/system/cpu"

// Sysfs reads the cpu topology from sysfs and switches cores through
// cpuN/online.
type Sysfs struct {
	root    string
	present []int
}

// NewSysfs reads the present cores under root. Ids missing from the present
// list are never reported or switched.
func NewSysfs(root string) (*Sysfs, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	present, err := readList(filepath.Join(root, "present"))
	if err != nil {
		return nil, err
	}
	if len(present) == 0 {
		return nil, domain.ErrNoCores
	}
	return &Sysfs{root: root, present: present}, nil
}

// PresentCores returns the ids listed in the present file.
func (s *Sysfs) PresentCores() []int {
	return slices.Clone(s.present)
}

// TotalCores returns the number of present cores.
func (s *Sysfs) TotalCores() int {
	return len(s.present)
}

// OnlineCores returns the ids currently listed in the online file.
func (s *Sysfs) OnlineCores() ([]int, error) {
	return readList(filepath.Join(s.root, "online"))
}

// BringOnline writes 1 to cpuN/online.
func (s *Sysfs) BringOnline(ctx context.Context, cpu int) error {
	return s.setOnline(ctx, cpu, true)
}

// TakeOffline writes 0 to cpuN/online.
func (s *Sysfs) TakeOffline(ctx context.Context, cpu int) error {
	return s.setOnline(ctx, cpu, false)
}

// Hotpluggable reports whether cpu exposes an online control. The boot core
// usually does not.
func (s *Sysfs) Hotpluggable(cpu int) bool {
	_, err := os.Stat(s.onlinePath(cpu))
	return err == nil
}

func (s *Sysfs) onlinePath(cpu int) string {
	return filepath.Join(s.root, fmt.Sprintf("cpu%d", cpu), "online")
}

func (s *Sysfs) setOnline(ctx context.Context, cpu int, online bool) error {
	if !slices.Contains(s.present, cpu) {
		return fmt.Errorf("cpu %d: %w", cpu, domain.ErrCoreOutOfRange)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value := "0"
	if online {
		value = "1"
	}
	// O_WRONLY without O_CREATE: a missing control means the core is fixed.
	f, err := os.OpenFile(s.onlinePath(cpu), os.O_WRONLY|os.O_TRUNC, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cpu %d: %w", cpu, domain.ErrCoreNotHotpluggable)
	}
	if err != nil {
		return fmt.Errorf("open cpu %d online control: %w", cpu, err)
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return fmt.Errorf("set cpu %d online=%s: %w", cpu, value, err)
	}
	return nil
}

func readList(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cpus, err := ParseList(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return cpus, nil
}

// Package config loads the Almmmost server configuration from an INI file,
// following original_source/almmmost/almmmost.c's parse_args section
// dispatch ([General]/[Disks]/[Disk n]/[Port n]/[Clients]/
// [Client OSTYPE n]/[Device]) and spec.md §6.4, adapted from the teacher's
// Default/Load/Validate config-loading shape.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/vax11/almmmost/internal/diskparam"
)

// ImageSpec names one disk image file, optionally read-only (the "RO:"
// wire-format prefix), per spec.md §6.4.
type ImageSpec struct {
	Path string
	RO   bool
}

// DiskConfig is one [Disk n] section: geometry plus the image files backing
// each slot (slot 0 for PUBLIC/PUBLIC_ONLY, one per private directory for
// PRIVATE).
type DiskConfig struct {
	Params diskparam.Params
	Images []ImageSpec
}

// PortConfig is one [Port n] section: per-port defaults.
type PortConfig struct {
	Autologon  bool
	PrivateDir int // -1 if unset
}

// ClientConfig is one [Client OSTYPE n] section, naming the OS image file to
// serve to a client family on boot. The boot/OS-load stream itself is out
// of scope (see SPEC_FULL.md Non-goals); this is retained as configuration
// surface only.
type ClientConfig struct {
	OSType string
	Index  int
	Image  string
}

// Config is the full parsed server configuration.
type Config struct {
	// [General]
	GenRev     int
	SpoolDrive int

	// [Disks]
	ImageDir    string
	NumDisks    int
	MaxPrivDirs int

	// [Disk n], indexed 0..NumDisks-1
	Disks []DiskConfig

	// [Port n], indexed 0..MaxUser-1
	Ports []PortConfig

	// [Client OSTYPE n]
	Clients []ClientConfig

	// [Device]
	DevicePath string
	NumPorts   int
}

// MaxUser bounds the number of [Port n] sections, matching
// original_source/almmmost/almmmost.h's MAXUSER.
const MaxUser = 16

// MaxDisk bounds the number of logical disks, matching almmmost.h's MAXDISK.
const MaxDisk = 6

// Default returns a minimal, internally consistent configuration suitable
// as a starting point for a new install.
func Default() Config {
	return Config{
		GenRev:      1,
		SpoolDrive:  0,
		ImageDir:    "./images",
		NumDisks:    1,
		MaxPrivDirs: 1,
		Disks: []DiskConfig{{
			Params: diskparam.Params{
				SPT: 26, BSF: 3, DBM: 242, DBL: 63, RES: 2, DirALx: 2,
				Kind: diskparam.Public, IsFloppy: true,
			},
			Images: []ImageSpec{{Path: "disk0.img"}},
		}},
		Ports:      make([]PortConfig, MaxUser),
		DevicePath: "/dev/tvi_sdlc0",
		NumPorts:   1,
	}
}

// Load reads and validates a configuration from path.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.Ports = make([]PortConfig, MaxUser)
	for i := range cfg.Ports {
		cfg.Ports[i].PrivateDir = -1
	}
	cfg.Disks = nil

	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("config: load %s: %w", path, err)
	}

	for _, sec := range f.Sections() {
		name := sec.Name()
		switch {
		case strings.EqualFold(name, "General"):
			parseGeneral(sec, &cfg)
		case strings.EqualFold(name, "Disks"):
			parseDisks(sec, &cfg)
		case strings.EqualFold(name, "Device"):
			parseDevice(sec, &cfg)
		case hasPrefixFold(name, "Disk "):
			parseDisk(sec, name, &cfg)
		case hasPrefixFold(name, "Port "):
			parsePort(sec, name, &cfg)
		case hasPrefixFold(name, "Client "):
			parseClient(sec, name, &cfg)
		}
	}

	for i := range cfg.Disks {
		cfg.Disks[i].Params.Derive()
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func parseGeneral(sec *ini.Section, cfg *Config) {
	if k := sec.Key("Genrev"); k.String() != "" {
		cfg.GenRev, _ = k.Int()
	}
	if k := sec.Key("Spool Drive"); k.String() != "" {
		cfg.SpoolDrive, _ = k.Int()
	}
}

func parseDisks(sec *ini.Section, cfg *Config) {
	if v := sec.Key("Image Dir").String(); v != "" {
		cfg.ImageDir = v
	}
	if v := sec.Key("Num Disks").String(); v != "" {
		cfg.NumDisks, _ = strconv.Atoi(v)
	}
	if v := sec.Key("Max Priv Dirs").String(); v != "" {
		cfg.MaxPrivDirs, _ = strconv.Atoi(v)
	}
}

func parseDevice(sec *ini.Section, cfg *Config) {
	if v := sec.Key("Path").String(); v != "" {
		cfg.DevicePath = v
	}
	if v := sec.Key("Num Ports").String(); v != "" {
		cfg.NumPorts, _ = strconv.Atoi(v)
	}
}

// parseDisk parses one [Disk n] section into cfg.Disks[n], growing the
// slice as needed; sections may arrive in any order.
func parseDisk(sec *ini.Section, name string, cfg *Config) {
	n, err := strconv.Atoi(strings.TrimSpace(name[5:]))
	if err != nil || n < 0 || n >= MaxDisk {
		return
	}
	for len(cfg.Disks) <= n {
		cfg.Disks = append(cfg.Disks, DiskConfig{})
	}
	dc := &cfg.Disks[n]

	switch strings.ToUpper(strings.TrimSpace(sec.Key("Type").String())) {
	case "PRIVATE":
		dc.Params.Kind = diskparam.Private
	case "PUBLIC_ONLY":
		dc.Params.Kind = diskparam.PublicOnly
	default:
		dc.Params.Kind = diskparam.Public
	}
	dc.Params.IsFloppy, _ = sec.Key("Floppy").Bool()

	dc.Params.SPT = intOrZero(sec, "SPT")
	dc.Params.BSF = intOrZero(sec, "BSF")
	dc.Params.DBM = intOrZero(sec, "DBM")
	dc.Params.DBL = intOrZero(sec, "DBL")
	dc.Params.RES = intOrZero(sec, "RES")
	dc.Params.DirALx = intOrZero(sec, "ALx")
	if sec.HasKey("EXM") {
		dc.Params.EXM = intOrZero(sec, "EXM")
	} else {
		dc.Params.EXM = diskparam.FindEXM(dc.Params.BSF, dc.Params.DBM)
	}

	for _, k := range sec.Keys() {
		if !hasPrefixFold(k.Name(), "Image ") {
			continue
		}
		dc.Images = append(dc.Images, parseImageSpec(k.String()))
	}
}

func intOrZero(sec *ini.Section, key string) int {
	v, _ := sec.Key(key).Int()
	return v
}

// parseImageSpec splits an "[RO:]path" image value, per spec.md §6.4.
func parseImageSpec(v string) ImageSpec {
	if strings.HasPrefix(strings.ToUpper(v), "RO:") {
		return ImageSpec{Path: v[3:], RO: true}
	}
	return ImageSpec{Path: v}
}

func parsePort(sec *ini.Section, name string, cfg *Config) {
	n, err := strconv.Atoi(strings.TrimSpace(name[5:]))
	if err != nil || n < 0 || n >= MaxUser {
		return
	}
	auto, _ := sec.Key("Autologon").Bool()
	cfg.Ports[n].Autologon = auto
	if v := sec.Key("Private Dir").String(); v != "" {
		cfg.Ports[n].PrivateDir, _ = strconv.Atoi(v)
	}
}

// parseClient parses one "[Client OSTYPE n]" section: a space-separated
// OS-type name and index in the section title.
func parseClient(sec *ini.Section, name string, cfg *Config) {
	fields := strings.Fields(name[len("Client "):])
	if len(fields) != 2 {
		return
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil {
		return
	}
	cfg.Clients = append(cfg.Clients, ClientConfig{
		OSType: fields[0],
		Index:  idx,
		Image:  sec.Key("Image").String(),
	})
}

// ResolveImagePath joins an image's configured path against ImageDir unless
// it is already absolute.
func (c Config) ResolveImagePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ImageDir, path)
}

// Validate checks internal consistency: disk and port count bounds, a
// [Disk n] section for every configured disk, SPT > 0, at least one image
// per PRIVATE disk and exactly one image per PUBLIC/PUBLIC_ONLY disk.
func (c *Config) Validate() error {
	if c.NumDisks <= 0 || c.NumDisks > MaxDisk {
		return fmt.Errorf("config: num disks %d out of range (1..%d)", c.NumDisks, MaxDisk)
	}
	if len(c.Disks) < c.NumDisks {
		return fmt.Errorf("config: num disks=%d but only %d [Disk n] sections found", c.NumDisks, len(c.Disks))
	}
	if c.NumPorts <= 0 || c.NumPorts > MaxUser {
		return fmt.Errorf("config: num ports %d out of range (1..%d)", c.NumPorts, MaxUser)
	}
	for i := 0; i < c.NumDisks; i++ {
		d := c.Disks[i]
		if d.Params.SPT <= 0 {
			return fmt.Errorf("config: disk %d: SPT must be > 0", i)
		}
		if d.Params.Kind == diskparam.Private && len(d.Images) == 0 {
			return fmt.Errorf("config: disk %d: PRIVATE disk has no images configured", i)
		}
		if d.Params.Kind != diskparam.Private && len(d.Images) != 1 {
			return fmt.Errorf("config: disk %d: PUBLIC/PUBLIC_ONLY disk must have exactly one image", i)
		}
	}
	return nil
}

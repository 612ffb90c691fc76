// Package server wires the configured disks/ports into a running Engine,
// Disp and Console, grounded on the teacher's internal/server/server.go's
// New/cfgSnapshot shape (adapted from an HTTP service's config+state
// bundle to this process's config+engine+dispatcher+console bundle).
package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/vax11/almmmost/internal/bam"
	"github.com/vax11/almmmost/internal/config"
	"github.com/vax11/almmmost/internal/console"
	"github.com/vax11/almmmost/internal/device"
	"github.com/vax11/almmmost/internal/diskparam"
	"github.com/vax11/almmmost/internal/dispatcher"
	"github.com/vax11/almmmost/internal/fileengine"
	"github.com/vax11/almmmost/internal/imagestore"
	"github.com/vax11/almmmost/internal/special"
)

// maxOpenFiles bounds the open-file table, matching almmmost.h's MAXFILES.
const maxOpenFiles = 32

// Server owns the full running process: the configuration it was built
// from, the file engine, the request dispatcher and the operator console.
type Server struct {
	cfgMu sync.RWMutex
	cfg   config.Config

	Engine  *fileengine.Engine
	Disp    *dispatcher.Disp
	Console *console.Console

	links []*device.SDLC
}

// New builds disks, ports, links and the dispatcher from cfg. Devices are
// opened eagerly; callers should check the returned error before calling
// Run.
func New(cfg config.Config) (*Server, error) {
	disks := make([]*imagestore.Disk, cfg.NumDisks)
	for i := 0; i < cfg.NumDisks; i++ {
		dc := cfg.Disks[i]
		params := dc.Params
		d := &imagestore.Disk{Params: &params}
		if params.Kind != diskparam.Private {
			d.BAM = bam.New(params.DBM)
		}
		for slot, img := range dc.Images {
			path := cfg.ResolveImagePath(img.Path)
			if err := imagestore.OpenSlot(d, slot, path, img.RO, true); err != nil {
				return nil, fmt.Errorf("server: disk %d: %w", i, err)
			}
		}
		if d.BAM != nil {
			if err := fileengine.BuildBAM(d, 0); err != nil {
				return nil, fmt.Errorf("server: disk %d: build bam: %w", i, err)
			}
		}
		disks[i] = d
	}

	engine := fileengine.NewEngine(disks, cfg.NumPorts, maxOpenFiles)
	for p := 0; p < cfg.NumPorts && p < len(cfg.Ports); p++ {
		engine.Ports[p].AutoLogon = cfg.Ports[p].Autologon
		if cfg.Ports[p].PrivateDir >= 0 {
			for d := range engine.Ports[p].DriveDir {
				engine.Ports[p].DriveDir[d] = cfg.Ports[p].PrivateDir
			}
		}
	}
	registerSpecialFiles(engine.Special)

	links := make([]*device.SDLC, cfg.NumPorts)
	dlinks := make([]dispatcher.Link, cfg.NumPorts)
	for p := 0; p < cfg.NumPorts; p++ {
		l, err := device.Open(cfg.DevicePath, p)
		if err != nil {
			closeLinks(links)
			return nil, fmt.Errorf("server: port %d: %w", p, err)
		}
		links[p] = l
		dlinks[p] = l
	}

	disp := dispatcher.New(dlinks, engine, cfg.SpoolDrive, cfg.GenRev)

	s := &Server{cfg: cfg, Engine: engine, Disp: disp, links: links}
	s.Console = console.New(disp, engine, s.saveOS)
	return s, nil
}

// registerSpecialFiles installs the built-in virtual files, grounded on
// almmmost_special.c's static trap table.
func registerSpecialFiles(reg *special.Registry) {
	reg.Register(special.Canonicalize([8]byte{'C', 'H', 'A', 'R', 'G', 'E', 'N', ' '}, [3]byte{'S', 'Y', 'S'}),
		special.NewChargenTrap(16))
}

func closeLinks(links []*device.SDLC) {
	for _, l := range links {
		if l != nil {
			_ = l.Close()
		}
	}
}

// saveOS is a documented-interface stub: the boot/OS-load stream that
// would populate this image is out of scope.
func (s *Server) saveOS(osnum int, path string) error {
	return fmt.Errorf("server: saveos unavailable (boot/OS-load stream is out of scope)")
}

// cfgSnapshot returns a copy of the configuration the server was built
// from, read under cfgMu (console "reopen" handling mutates disk state,
// not cfg, but the lock guards any future
// runtime cfg mutation the same way the teacher's cfgSnapshot did).
func (s *Server) cfgSnapshot() config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Run starts the dispatcher loop and blocks until ctx is canceled or the
// console issues exit/quit.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.Console.Run()
	go func() {
		<-s.Console.Quit()
		cancel()
	}()

	cfg := s.cfgSnapshot()
	log.Printf("almmmost: serving %d port(s) on %s", cfg.NumPorts, cfg.DevicePath)
	err := s.Disp.Run(ctx)
	closeLinks(s.links)
	if err == context.Canceled {
		return nil
	}
	return err
}

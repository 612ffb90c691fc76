package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vax11/almmmost/internal/diskparam"
)

// geometryFlags are the disk parameter block fields shared by every
// subcommand, taken from flags (no running server to ask).
type geometryFlags struct {
	kind string
	spt  int
	bsf  int
	exm  int
	dbm  int
	dbl  int
	res  int
	alx  int
}

func addGeometryFlags(cmd *cobra.Command, g *geometryFlags) {
	cmd.Flags().StringVar(&g.kind, "type", "PUBLIC", "Disk type: PUBLIC, PUBLIC_ONLY, or PRIVATE")
	cmd.Flags().IntVar(&g.spt, "spt", 26, "Sectors per track")
	cmd.Flags().IntVar(&g.bsf, "bsf", 3, "Block shift factor")
	cmd.Flags().IntVar(&g.exm, "exm", -1, "Extent mask (-1 to derive from bsf/dbm)")
	cmd.Flags().IntVar(&g.dbm, "dbm", 242, "Max data block number")
	cmd.Flags().IntVar(&g.dbl, "dbl", 63, "Max directory entry index")
	cmd.Flags().IntVar(&g.res, "res", 2, "Reserved tracks")
	cmd.Flags().IntVar(&g.alx, "alx", 2, "Directory-reserved block count")
}

func (g geometryFlags) params() (*diskparam.Params, error) {
	var kind diskparam.Kind
	switch strings.ToUpper(g.kind) {
	case "PUBLIC":
		kind = diskparam.Public
	case "PUBLIC_ONLY":
		kind = diskparam.PublicOnly
	case "PRIVATE":
		kind = diskparam.Private
	default:
		return nil, fmt.Errorf("unknown disk type %q", g.kind)
	}
	p := &diskparam.Params{Kind: kind, SPT: g.spt, BSF: g.bsf, DBM: g.dbm, DBL: g.dbl, RES: g.res, DirALx: g.alx}
	if g.exm >= 0 {
		p.EXM = g.exm
	} else {
		p.EXM = diskparam.FindEXM(g.bsf, g.dbm)
	}
	p.Derive()
	return p, nil
}

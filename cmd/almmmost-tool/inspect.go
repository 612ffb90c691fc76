package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vax11/almmmost/internal/direntry"
)

var inspectFlags geometryFlags

var inspectCmd = &cobra.Command{
	Use:                   "inspect IMAGE",
	Short:                 "List the directory entries on a disk image",
	Long:                  `Reads a CP/M disk image directly (no running server) and prints each live directory entry's name, user code, and extent/size bookkeeping.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := inspectFlags.params()
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		recs := params.DirRecMax - params.DirRecMin + 1
		buf := make([]byte, 128)
		for rec := 0; rec < recs; rec++ {
			off := int64(params.DirRecMin+rec) * 128
			if _, err := f.ReadAt(buf, off); err != nil {
				return fmt.Errorf("read directory record %d: %w", rec, err)
			}
			for slot := 0; slot < 4; slot++ {
				de := direntry.Decode(buf[slot*direntry.Size:(slot+1)*direntry.Size], params.DBM)
				if de.IsFree() {
					continue
				}
				fmt.Printf("U%-2d %-8s.%-3s ext=%-3d size=%-4d blocks=%v\n",
					de.User, trimName(de.Name[:]), trimName(de.Ext[:]), de.FE(), de.ExtentSizeRecords(params.EXM), usedBlocks(de.Blocks))
			}
		}
		return nil
	},
}

func trimName(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c & 0x7F
	}
	return string(out)
}

func usedBlocks(blocks [16]uint16) []uint16 {
	var out []uint16
	for _, b := range blocks {
		if b != 0 {
			out = append(out, b)
		}
	}
	return out
}

func init() {
	addGeometryFlags(inspectCmd, &inspectFlags)
	rootCmd.AddCommand(inspectCmd)
}

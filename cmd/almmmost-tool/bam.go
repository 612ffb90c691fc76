package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vax11/almmmost/internal/bam"
	"github.com/vax11/almmmost/internal/direntry"
)

var bamFlags geometryFlags

var bamCmd = &cobra.Command{
	Use:                   "bam IMAGE",
	Short:                 "Recompute and print the block allocation map for a PUBLIC image",
	Long:                  `Scans every live directory entry on a PUBLIC disk image and prints the resulting block -> directory-entry-index map, matching the server's startup BAM rebuild.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := bamFlags.params()
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		b := bam.New(params.DBM)
		recs := params.DirRecMax - params.DirRecMin + 1
		buf := make([]byte, 128)
		for rec := 0; rec < recs; rec++ {
			off := int64(params.DirRecMin+rec) * 128
			if _, err := f.ReadAt(buf, off); err != nil {
				return fmt.Errorf("read directory record %d: %w", rec, err)
			}
			for slot := 0; slot < 4; slot++ {
				deIndex := rec*4 + slot
				de := direntry.Decode(buf[slot*direntry.Size:(slot+1)*direntry.Size], params.DBM)
				if de.IsFree() {
					continue
				}
				for _, blk := range de.Blocks {
					if blk != 0 {
						b.Mark(int(blk), deIndex)
					}
				}
			}
		}

		free, used := 0, 0
		for blk := 0; blk <= params.DBM; blk++ {
			if owner := b.Owner(blk); owner >= 0 {
				used++
				fmt.Printf("block %-4d -> DE %d\n", blk, owner)
			} else {
				free++
			}
		}
		fmt.Printf("%d used, %d free\n", used, free)
		return nil
	},
}

func init() {
	addGeometryFlags(bamCmd, &bamFlags)
	rootCmd.AddCommand(bamCmd)
}

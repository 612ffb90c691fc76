package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dpbFlags geometryFlags

var dpbCmd = &cobra.Command{
	Use:                   "dpb",
	Short:                 "Print the derived disk parameter block for a geometry",
	Long:                  `Computes and prints every derived disk parameter block field (block size, directory/data record ranges, track count) for the geometry flags given, without touching an image file.`,
	Args:                  cobra.NoArgs,
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := dpbFlags.params()
		if err != nil {
			return err
		}
		fmt.Printf("Kind:           %s\n", params.Kind)
		fmt.Printf("SPT:            %d\n", params.SPT)
		fmt.Printf("BSF:            %d (block size %d bytes)\n", params.BSF, params.BlockSize)
		fmt.Printf("EXM:            %d (%d records/extent)\n", params.EXM, params.RecordsPerExtent())
		fmt.Printf("DBM:            %d (16-bit blocks: %v)\n", params.DBM, params.Use16BitBlocks())
		fmt.Printf("DBL:            %d\n", params.DBL)
		fmt.Printf("RES:            %d\n", params.RES)
		fmt.Printf("DirALx:         %d\n", params.DirALx)
		fmt.Printf("DirRecMin/Max:  %d / %d\n", params.DirRecMin, params.DirRecMax)
		fmt.Printf("DataRecMin/Max: %d / %d\n", params.DataRecMin, params.DataRecMax)
		fmt.Printf("Tracks:         %d\n", params.Tracks)
		return nil
	},
}

func init() {
	addGeometryFlags(dpbCmd, &dpbFlags)
	rootCmd.AddCommand(dpbCmd)
}

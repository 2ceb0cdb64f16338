// main.go - entry point for the Luz toolchain

/*
Luz Toolchain and Simulator — 32-bit RISC CPU, assembler, linker and debugger
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/LuzEngine
License: GPLv3 or later
*/

package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "luz",
	Short: "Assembler, linker and simulator for the Luz 32-bit RISC CPU",
	Long: `luz takes Luz assembly (LASM) sources through relocatable objects and a
linked executable image to a bit-exact simulation of the Luz CPU, with an
interactive debugger.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(assembleCmd, linkCmd, runCmd, debugCmd)
}

func main() {
	logrus.SetOutput(os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

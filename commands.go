// commands.go - assemble, link, run and debug subcommands

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	assembleOutput string
	linkOutput     string
	queueAddr      uint32
	queueDisabled  bool
	traceExec      bool
	debugAlias     bool
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <src.lasm>...",
	Short: "Assemble LASM sources into relocatable objects",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if assembleOutput != "" && len(args) != 1 {
			return fmt.Errorf("-o requires exactly one source file")
		}
		asm := NewAssembler()
		for _, src := range args {
			obj, err := asm.AssembleFile(src)
			if err != nil {
				return err
			}
			out := assembleOutput
			if out == "" {
				out = objectPath(src)
			}
			if err := SaveObjectFile(obj, out); err != nil {
				return err
			}
			logrus.Debugf("assembled %s -> %s (%d segment(s), %d export(s))",
				src, out, len(obj.SegOrder), len(obj.Exports))
		}
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <obj>... -o <exe>",
	Short: "Link objects into an executable image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if linkOutput == "" {
			return fmt.Errorf("link requires -o <exe>")
		}
		objects := make([]*ObjectFile, 0, len(args))
		for _, path := range args {
			obj, err := LoadObjectFile(path)
			if err != nil {
				return err
			}
			objects = append(objects, obj)
		}
		exe, err := NewLinker().Link(objects)
		if err != nil {
			return err
		}
		logrus.Debugf("linked %d object(s), entry 0x%08X", len(objects), exe.Entry)
		return SaveExecutable(exe, linkOutput)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <exe>",
	Short: "Execute an image to HALT and print the final register file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpu, queue, err := loadMachine(args[0])
		if err != nil {
			return err
		}
		if traceExec {
			runTraced(cpu)
		} else {
			cpu.Run()
		}

		monitor := NewDebugMonitor(cpu, queue, nil, os.Stdout)
		monitor.SetAlias(true)
		monitor.ShowRegisters()
		if queue != nil && len(queue.Items) > 0 {
			fmt.Println("debug queue:")
			monitor.cmdQueue()
		}

		if cpu.Faulted {
			return fmt.Errorf("program faulted, cause=%d at 0x%08X",
				cpu.CoreRegs().ExceptionCause(), cpu.CoreRegs().ExceptionReturnAddr()-4)
		}
		return nil
	},
}

var debugCmd = &cobra.Command{
	Use:   "debug <exe>",
	Short: "Load an image into the interactive debug monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpu, queue, err := loadMachine(args[0])
		if err != nil {
			return err
		}
		monitor := NewDebugMonitor(cpu, queue, os.Stdin, os.Stdout)
		monitor.SetAlias(debugAlias)
		monitor.SetPrompt(term.IsTerminal(int(os.Stdin.Fd())))
		return monitor.Run()
	},
}

func init() {
	assembleCmd.Flags().StringVarP(&assembleOutput, "output", "o", "", "object file to write")

	linkCmd.Flags().StringVarP(&linkOutput, "output", "o", "", "executable file to write")

	for _, cmd := range []*cobra.Command{runCmd, debugCmd} {
		cmd.Flags().Uint32Var(&queueAddr, "queue-addr", ADDR_DEBUG_QUEUE, "debug queue peripheral address")
		cmd.Flags().BoolVar(&queueDisabled, "no-queue", false, "disable the debug queue peripheral")
	}
	runCmd.Flags().BoolVar(&traceExec, "trace", false, "log every executed instruction")
	debugCmd.Flags().BoolVar(&debugAlias, "alias", false, "start with alias register names")
}

// loadMachine builds a reset machine around the named executable.
func loadMachine(path string) (*CPU, *DebugQueue, error) {
	exe, err := LoadExecutable(path)
	if err != nil {
		return nil, nil, err
	}
	bus := NewMemoryBus()
	cpu := NewLuzCPU(bus)

	var queue *DebugQueue
	if !queueDisabled {
		queue = NewDebugQueue()
		if traceExec {
			queue.Trace = func(word uint32) {
				logrus.Debugf("debug queue <- 0x%X", word)
			}
		}
		bus.MapPeripheral(queueAddr, queueAddr, queue)
	}

	bus.LoadImage(exe)
	cpu.Reset(exe.Entry)
	logrus.Debugf("loaded %s, entry 0x%08X", path, exe.Entry)
	return cpu, queue, nil
}

// runTraced executes to HALT, logging each instruction as it retires.
func runTraced(cpu *CPU) {
	for !cpu.Halted {
		pc := cpu.PC
		raw := cpu.Bus().ReadBytes(pc, 4)
		word := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
		logrus.Debugf("%08X  %s", pc, Disassemble(word, true))
		cpu.Step()
	}
}

// objectPath derives the object file name from a source path.
func objectPath(src string) string {
	if strings.HasSuffix(src, ".lasm") {
		return strings.TrimSuffix(src, ".lasm") + ".lo"
	}
	return src + ".lo"
}

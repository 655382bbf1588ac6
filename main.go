package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"roth/vm"
)

var (
	verify   bool
	noVerify bool
	prealloc int
	verbose  bool
)

func main() {
	root := &cobra.Command{
		Use:   "roth",
		Short: "compiler, verifier, and VM for the Roth stack language",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Logger.Level(level)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "v", "v", false, "enable debug-level logging")

	compileCmd := &cobra.Command{
		Use:   "compile <source> <target>",
		Short: "compile Roth source to a .bin container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(args[0], args[1])
		},
	}
	compileCmd.Flags().BoolVar(&verify, "verify", true, "verify bytecode after compiling")
	compileCmd.Flags().BoolVar(&noVerify, "noverify", false, "skip verification and allow %int/%float/%str/%drop")
	root.AddCommand(compileCmd)

	runCmd := &cobra.Command{
		Use:   "run <binary>",
		Short: "load and execute a compiled .bin container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBinary(args[0])
		},
	}
	runCmd.Flags().BoolVar(&verify, "verify", true, "verify bytecode before executing")
	runCmd.Flags().BoolVar(&noVerify, "noverify", false, "skip verification")
	root.AddCommand(runCmd)

	interpretCmd := &cobra.Command{
		Use:   "interpret <source>",
		Short: "compile in memory and execute immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterpret(args[0])
		},
	}
	interpretCmd.Flags().BoolVar(&verify, "verify", true, "verify bytecode before executing")
	interpretCmd.Flags().BoolVar(&noVerify, "noverify", false, "skip verification and allow %int/%float/%str/%drop")
	interpretCmd.Flags().IntVar(&prealloc, "prealloc", 4096, "initial input-buffer capacity in bytes")
	root.AddCommand(interpretCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func effectiveVerify() bool {
	if noVerify {
		return false
	}
	return verify
}

func runCompile(srcPath, outPath string) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	pre, err := compileSource(string(src))
	if err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return vm.Serialize(f, pre)
}

func runBinary(binPath string) error {
	f, err := os.Open(binPath)
	if err != nil {
		return err
	}
	defer f.Close()
	bin, err := vm.Deserialize(f)
	if err != nil {
		return err
	}
	return executeBinary(bin)
}

func runInterpret(srcPath string) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	pre, err := compileSource(string(src))
	if err != nil {
		return err
	}
	code, err := vm.AssemblePreBinary(pre)
	if err != nil {
		return err
	}
	return executeBinaryWithInputBuffer(&vm.Binary{Constants: pre.Constants, Code: code}, prealloc)
}

// compileSource runs the macro-expansion pre-pass followed by the
// type-stack compiler, per SPEC_FULL.md's supplemented if/while sugar.
func compileSource(src string) (*vm.PreBinary, error) {
	tokens, err := vm.Lex(src)
	if err != nil {
		return nil, err
	}
	tokens, err = vm.ExpandMacros(tokens)
	if err != nil {
		return nil, err
	}
	return vm.CompileTokens(tokens, vm.CompileOptions{Verify: effectiveVerify()})
}

func executeBinary(bin *vm.Binary) error {
	return executeBinaryWithInputBuffer(bin, 0)
}

func executeBinaryWithInputBuffer(bin *vm.Binary, inputBufSize int) error {
	maxDepth := 0
	if effectiveVerify() {
		result, err := vm.Verify(bin.Code)
		if err != nil {
			return err
		}
		maxDepth = result.MaxDepth
	} else {
		maxDepth = len(bin.Code) / 2
	}
	if maxDepth == 0 {
		maxDepth = 1
	}
	machine := vm.NewVMWithInputBuffer(bin, maxDepth, inputBufSize)
	result := vm.Run(machine)
	if result.Err != nil {
		os.Exit(-1)
	}
	os.Exit(result.ExitCode)
	return nil
}

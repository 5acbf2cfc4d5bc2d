// Command mpromptctl is a small interactive driver over package mprompt,
// demonstrating a generator built from a single prompt: the program yields
// one value at a time and the CLI prints it and resumes the generator until
// --count values have been printed.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mprompt-go/mprompt"
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var count int
	var verbose bool

	root := &cobra.Command{
		Use:   "mpromptctl",
		Short: "Drive a multi-prompt generator from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return runGenerator(count)
		},
	}
	root.Flags().IntVarP(&count, "count", "n", 5, "how many values to pull from the generator")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newBenchCmd())
	return root
}

// runGenerator walks a counting generator built as an mprompt prompt: each
// call to Yield hands one value to the driver and suspends until resumed.
func runGenerator(count int) error {
	mprompt.Init(mprompt.DefaultConfig())

	type step struct {
		value int
		next  mprompt.Resumption
		done  bool
	}

	advance := make(chan step, 1)

	go func() {
		_, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
			for i := 0; ; i++ {
				mprompt.Yield(p, func(r mprompt.Resumption, _ any) any {
					advance <- step{value: i, next: r}
					return nil
				}, nil)
			}
		}, nil)
		if err != nil {
			log.WithError(err).Error("generator prompt exited abnormally")
		}
	}()

	for i := 0; i < count; i++ {
		s := <-advance
		fmt.Printf("value: %d\n", s.value)
		if i < count-1 {
			if _, err := mprompt.Resume(s.next, nil); err != nil {
				return err
			}
		} else {
			mprompt.ResumeDrop(s.next)
		}
	}
	return nil
}

func newBenchCmd() *cobra.Command {
	var iterations int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Round-trip a prompt N times and report completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			mprompt.Init(mprompt.DefaultConfig())
			for i := 0; i < iterations; i++ {
				if _, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
					return mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
						v, _ := mprompt.Resume(r, yarg)
						return v
					}, i)
				}, nil); err != nil {
					return err
				}
			}
			fmt.Printf("completed %d round trips\n", iterations)
			return nil
		},
	}
	cmd.Flags().IntVarP(&iterations, "iterations", "i", 1000, "number of prompts to run")
	return cmd
}

// Command qimg builds and inspects QuantumOS disk images: an MBR whose
// bootstrap region is stage-1, followed by a FAT16 partition holding
// stage-3, the kernel, and an optional compressed initfs.
//
// Its subcommand dispatch is grounded on firefly's tools/plan/main.go
// RegisterCommand pattern (the same pack contributing go-cmp), adapted to
// this tool's two actual verbs instead of a general-purpose registry.
package main

import (
	"fmt"
	"log"
	"os"
)

type command struct {
	name string
	desc string
	run  func(args []string) error
}

var commands = []command{
	{"build", "assemble a bootable disk image from a manifest or flags", BuildCmd},
	{"inspect", "print the layout and embedded handoff diagnostics of a built image", InspectCmd},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: qimg <command> [args...]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.desc)
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("qimg: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	for _, c := range commands {
		if c.name == os.Args[1] {
			if err := c.run(os.Args[2:]); err != nil {
				log.Fatal(err)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "qimg: unknown command %q\n\n", os.Args[1])
	usage()
	os.Exit(2)
}

// Command colordist reports whether two hex colors would be matched to the
// same identity.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kdimtricp/lostfound/internal/color"
)

func main() {
	cmp := color.MeanColor{}
	threshold := flag.Float64("threshold", cmp.DefaultThreshold(), "Largest RGB distance still considered the same object")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-threshold n] #RRGGBB #RRGGBB\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	a, err := color.ParseHex(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	b, err := color.ParseHex(flag.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	t, lost := *threshold, cmp.StricterThreshold(*threshold)
	d := color.Distance(a, b)
	fmt.Printf("distance(%s, %s) = %.3f\n", a, b, d)
	fmt.Printf("same object (threshold %g): %t\n", t, d <= t)
	fmt.Printf("reactivates a lost object (threshold %g): %t\n", lost, d <= lost)
}

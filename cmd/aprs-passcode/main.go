// Command aprs-passcode prints the APRS-IS passcode of one or more callsigns.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/wxrelay/pkg/aprs"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s CALLSIGN [CALLSIGN...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	for _, call := range flag.Args() {
		fmt.Printf("%s\t%d\n", call, aprs.CalculatePasscode(call))
	}
}

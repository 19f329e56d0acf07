// Command ragctl submits PDFs and questions to a pdfrag coordinator.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

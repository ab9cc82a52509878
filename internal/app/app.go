// Package app provides the main application helper for the translator.
package app

import (
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/abi"
	"github.com/retroenv/retrowasm/internal/detector"
	"github.com/retroenv/retrowasm/internal/options"
)

// PrintInfo prints the information about the input file and the calling
// convention used for translation.
func PrintInfo(logger *log.Logger, opts options.Program, format detector.Format, convention abi.Convention, functions int) {
	if opts.Quiet {
		return
	}

	switch format {
	case detector.ELF:
		logger.Info("Processing ELF object file",
			log.String("file", opts.Input),
			log.Int("functions", functions),
			log.String("abi", convention.Name),
		)

	case detector.MachO:
		logger.Info("Processing Mach-O object file",
			log.String("file", opts.Input),
			log.Int("functions", functions),
			log.String("abi", convention.Name),
		)
		logger.Warn("Mach-O symbols carry no size, functions can not be translated")
	}

	if len(convention.Parameters) == 0 {
		logger.Warn("Translated functions take no parameters")
	}
}

// Command clapscan scans a directory for .clap bundles and prints what was
// found as JSON, using the same clapscan.Scan + clapabi.Loader pair the
// generator and fx facades use at runtime.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/charlesvestal/move-anything-clap/pkg/clapabi"
	"github.com/charlesvestal/move-anything-clap/pkg/clapscan"
	"go.uber.org/zap"
)

func main() {
	var dir string
	flag.StringVar(&dir, "dir", ".", "directory to scan for .clap bundles")
	var verbose bool
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	list, err := clapscan.Scan(dir, clapabi.NewLoader(), logger)
	if err != nil {
		logger.Error("scan failed", zap.String("dir", dir), zap.Error(err))
		os.Exit(1)
	}
	list.Sort()

	encoded, err := json.MarshalIndent(list.All(), "", "  ")
	if err != nil {
		logger.Error("encode failed", zap.Error(err))
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}

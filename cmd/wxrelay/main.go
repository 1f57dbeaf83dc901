package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	_ "time/tzdata"

	"github.com/chrissnell/wxrelay/internal/app"
	"github.com/chrissnell/wxrelay/internal/log"
	"github.com/chrissnell/wxrelay/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "wxrelay.yaml", "Path to the YAML configuration file")
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before ${VAR} expansion")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wxrelay %s\n", version)
		os.Exit(0)
	}

	filename, _ := filepath.Abs(*cfgFile)
	provider := config.NewYAMLProvider(filename, *envFile)
	cfgData, err := provider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config file. Did you pass the -config flag? Run with -h for help: %v\n", err)
		os.Exit(1)
	}
	defer provider.Close()

	// Set up logging
	err = log.InitWithFile(*debug || cfgData.Log.Debug, log.FileOptions{
		Path:       cfgData.Log.File,
		MaxSizeMB:  cfgData.Log.MaxSizeMB,
		MaxBackups: cfgData.Log.MaxBackups,
		MaxAgeDays: cfgData.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Infof("wxrelay %s starting", version)

	application := app.New(provider, log.GetSugaredLogger(), version)
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}

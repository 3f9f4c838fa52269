package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"drydock/cmd"
)

func usage() {
	fmt.Println(`Usage:
  drydock run [pipeline.yml]          run a pipeline
  drydock deploy <flags>              deploy a version to an environment
  drydock rollback <deployment-id>    roll back a recorded deployment
  drydock serve                       start the control-plane server`)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "run":
		configPath := "drydock.yml"
		if len(os.Args) >= 3 {
			configPath = os.Args[2]
		}
		if err := cmd.Run(configPath); err != nil {
			fmt.Println("Pipeline failed:", err)
			os.Exit(1)
		}

	case "deploy":
		fs := flag.NewFlagSet("deploy", flag.ExitOnError)
		name := fs.String("name", "", "deployment name")
		version := fs.String("version", "", "version to deploy")
		environment := fs.String("env", "", "target environment name")
		artifacts := fs.String("artifacts", "", "comma-separated artifact paths")
		strategy := fs.String("strategy", "", "rollback strategy (immediate, rolling, blue_green, canary, manual)")
		rollbackOnFailure := fs.Bool("rollback-on-failure", true, "roll back automatically when the deployment fails")
		fs.Parse(os.Args[2:])

		if *name == "" || *version == "" || *environment == "" {
			fmt.Println("deploy requires -name, -version and -env")
			os.Exit(1)
		}

		opts := cmd.DeployOptions{
			Name:              *name,
			Version:           *version,
			Environment:       *environment,
			Strategy:          *strategy,
			RollbackOnFailure: *rollbackOnFailure,
		}
		if *artifacts != "" {
			opts.Artifacts = strings.Split(*artifacts, ",")
		}
		if err := cmd.Deploy(opts); err != nil {
			fmt.Println("Deployment failed:", err)
			os.Exit(1)
		}

	case "rollback":
		fs := flag.NewFlagSet("rollback", flag.ExitOnError)
		strategy := fs.String("strategy", "", "override the recorded rollback strategy")
		reason := fs.String("reason", "", "why this rollback is happening")
		fs.Parse(os.Args[2:])

		if fs.NArg() < 1 {
			fmt.Println("rollback requires a deployment id")
			os.Exit(1)
		}
		if err := cmd.Rollback(fs.Arg(0), *strategy, *reason); err != nil {
			fmt.Println("Rollback failed:", err)
			os.Exit(1)
		}

	case "serve":
		if err := cmd.Serve(); err != nil {
			fmt.Println("Server failed:", err)
			os.Exit(1)
		}

	default:
		fmt.Println("Unknown command:", os.Args[1])
		usage()
	}
}

// Package cli implements the adforge command line.
package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "render":
		return runRender(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("adforge: turn a folder of product media into a short video ad")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  adforge render --dir <folder> [--length 30] [--tone confident] [--voice default] [--aspect 16:9]")
	fmt.Println("  adforge doctor")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  render  run the full pipeline on a folder; the folder name is the run id")
	fmt.Println("  doctor  check ffmpeg, ffprobe, espeak and the configured narration engine")
	fmt.Println()
	fmt.Println("Configuration is read from the environment, .env and ADFORGE_CONFIG (TOML).")
}

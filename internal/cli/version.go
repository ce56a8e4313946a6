package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mulltray/mulltray/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s (%s)\n", styled(styleBrand, "mulltray"), styled(styleVersion, buildinfo.Version), buildinfo.Codename)
		fmt.Printf("  %s %s\n", styled(styleLabel, "Commit:"), buildinfo.CommitHash)
		fmt.Printf("  %s %s\n", styled(styleLabel, "Built:"), buildinfo.BuildDate)
		fmt.Printf("  %s %s/%s\n", styled(styleLabel, "OS/Arch:"), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  %s %s\n", styled(styleLabel, "Go:"), runtime.Version())
	},
}

package common

import (
	"github.com/ternarybob/banner"
)

// AppName is shown in the banner and crash reports.
const AppName = "Limit-Up Review"

// PrintBanner displays the application banner
func PrintBanner(version string) {
	banner.Print(AppName, version)
}

package core

import (
	"fmt"
	"runtime"
)

const Version = "0.1.0"

// PoweredByHeader is set on every webhook response.
const PoweredByHeader = "X-Slack-Powered-By"

// PoweredByValue identifies this library in webhook responses.
func PoweredByValue() string {
	return "go-slack/" + Version
}

// UserAgent is sent on every outbound API call.
func UserAgent() string {
	return fmt.Sprintf("go-slack/%s %s (%s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

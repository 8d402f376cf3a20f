package gologger

import (
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Named returns the logger the provider hands out for a component name,
// falling back to nop.
func Named(provider glog.LoggerProvider, name string) glog.Logger {
	if provider == nil {
		return glog.Nop()
	}
	if logger := provider.GetLogger(name); logger != nil {
		return logger
	}
	return glog.Nop()
}

package observability

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	// EnablePprofTrace mounts the runtime trace endpoint under /debug/pprof.
	EnablePprofTrace bool
	// LogJSONPath enables the newline-delimited JSON event sink, appending
	// to the named file.
	LogJSONPath string
}

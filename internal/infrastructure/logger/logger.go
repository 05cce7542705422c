package logger

import (
	"io"
	"log"
	"os"
	"strings"
)

var (
	Info  *log.Logger
	Error *log.Logger
	Debug *log.Logger
	Warn  *log.Logger
)

const logFlags = log.Ldate | log.Ltime | log.LUTC | log.Lshortfile

func init() {
	Info = log.New(os.Stdout, "INFO: ", logFlags)
	Error = log.New(os.Stdout, "ERROR: ", logFlags)
	Warn = log.New(os.Stdout, "WARN: ", logFlags)
	Debug = log.New(io.Discard, "DEBUG: ", logFlags)
}

// SetLevel enables debug output when level is "debug". Other levels leave
// Debug discarded.
func SetLevel(level string) {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		Debug.SetOutput(os.Stdout)
		return
	}
	Debug.SetOutput(io.Discard)
}

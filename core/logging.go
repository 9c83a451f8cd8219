package core

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// SetupLogging tees the standard logger and gin's access log into
// <cfg.LogDir>/<process>.log as well as stdout. Close the returned file on exit.
func SetupLogging(cfg Config, process string) (io.Closer, error) {
	if process == "" {
		return nil, errors.New("logging: process name is empty")
	}
	dir := cfg.LogDir
	if dir == "" {
		dir = "./log"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, process+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	out := io.MultiWriter(os.Stdout, f)
	log.SetOutput(out)
	gin.DefaultWriter = out
	gin.DefaultErrorWriter = out
	return f, nil
}

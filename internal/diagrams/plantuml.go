package diagrams

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hugh/easy-diagrams/pkg/config"
)

const maxStderr = 4096

// PlantUMLRenderer pipes code through the PlantUML CLI in PNG pipe mode.
type PlantUMLRenderer struct {
	command   []string
	limitSize int
	timeout   time.Duration
	logger    *slog.Logger
}

func NewPlantUMLRenderer(cfg config.RenderConfig, logger *slog.Logger) *PlantUMLRenderer {
	command := []string{"java", "-jar", cfg.JarPath, "-tpng", "-p"}
	if cfg.UseLocal {
		command = []string{"plantuml", "-tpng", "-p"}
	}
	return NewCommandRenderer(command, cfg.LimitSize, cfg.Timeout(), logger)
}

// NewCommandRenderer runs an arbitrary command that reads code on stdin and
// writes the image to stdout.
func NewCommandRenderer(command []string, limitSize int, timeout time.Duration, logger *slog.Logger) *PlantUMLRenderer {
	return &PlantUMLRenderer{
		command:   command,
		limitSize: limitSize,
		timeout:   timeout,
		logger:    logger,
	}
}

func (r *PlantUMLRenderer) Render(ctx context.Context, code string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Stdin = strings.NewReader(code)
	cmd.Dir = os.TempDir()
	cmd.Env = append(os.Environ(),
		"PLANTUML_LIMIT_SIZE="+strconv.Itoa(r.limitSize),
		"PLANTUML_SECURITY_PROFILE=SANDBOX",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		renderErr := &RenderError{ExitCode: -1, Stderr: truncate(stderr.String(), maxStderr), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			renderErr.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			renderErr.Err = ctx.Err()
		}
		r.logger.Warn("plantuml error detected",
			"exit_code", renderErr.ExitCode,
			"stderr", renderErr.Stderr,
			"error", err,
		)
		return nil, renderErr
	}

	if stdout.Len() == 0 {
		return nil, &RenderError{Stderr: "renderer produced no output"}
	}

	r.logger.Debug("rendered diagram", "bytes", stdout.Len(), "duration", time.Since(start).String())
	return stdout.Bytes(), nil
}

// truncate caps s at n bytes without splitting a rune. Invalid UTF-8 from
// the renderer is replaced so the result can be stored in a text column.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

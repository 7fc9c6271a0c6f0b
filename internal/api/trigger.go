package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// SubprocessRunner returns a ScrapeRunner that re-invokes the current
// binary's scrape subcommand, mirroring the trigger endpoint running the
// scraper as a separate process.
func SubprocessRunner(configPath string) ScrapeRunner {
	return func(ctx context.Context) ([]byte, error) {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		args := []string{"scrape"}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		cmd := exec.CommandContext(ctx, self, args...)
		var stderr strings.Builder
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return []byte(stderr.String()), fmt.Errorf("run scraper: %w", err)
		}
		return nil, nil
	}
}

type triggerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// triggerScrape handles POST /api/fetch-new-data. The scraper runs as a
// separate process under a hard timeout; its exit status and captured error
// output are surfaced in the response.
func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	if s.runScrape == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scrape trigger not configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.triggerTimeout)
	defer cancel()

	output, err := s.runScrape(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Error("scrape trigger timed out", zap.Duration("timeout", s.triggerTimeout))
			s.writeJSON(w, http.StatusInternalServerError, triggerResponse{
				Status:  "error",
				Message: fmt.Sprintf("Scraper timed out after %s", s.triggerTimeout),
			})
			return
		}
		s.logger.Error("scrape trigger failed", zap.Error(err),
			zap.String("stderr", string(output)))
		s.writeJSON(w, http.StatusInternalServerError, triggerResponse{
			Status:  "error",
			Message: fmt.Sprintf("Scraper failed: %s", strings.TrimSpace(string(output))),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, triggerResponse{
		Status:  "success",
		Message: "Data fetch completed successfully",
	})
}

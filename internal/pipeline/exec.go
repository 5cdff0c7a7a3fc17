package pipeline

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/newslett/ttsd/internal/config"
)

// execPipeline drives an external model runner process. The runner receives
// one JSON request on stdin and emits one JSON line per synthesized chunk,
// in chunk order. Calls are serialized: whether the underlying model
// tolerates concurrent inference is unspecified, so the safe contract is one
// synthesis at a time.
type execPipeline struct {
	cmd []string
	cfg config.PipelineConfig
	mu  sync.Mutex
}

type execRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	Speed        float64 `json:"speed"`
	LangCode     string  `json:"lang_code"`
	SampleRate   int     `json:"sample_rate"`
	SplitPattern string  `json:"split_pattern"`
}

type execResponse struct {
	Graphemes string `json:"graphemes"`
	Phonemes  string `json:"phonemes"`
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecPipeline parses the runner command line and verifies the binary is
// resolvable. A missing or malformed runner surfaces here, at startup, so the
// holder can record the unavailable state.
func NewExecPipeline(cfg config.PipelineConfig) (Pipeline, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("pipeline command empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("resolve pipeline runner: %w", err)
	}
	return &execPipeline{cmd: args, cfg: cfg}, nil
}

func (e *execPipeline) Synthesize(ctx context.Context, req Request) (<-chan Segment, <-chan error) {
	e.mu.Lock()
	segments := make(chan Segment)
	errs := make(chan error, 1)
	go func() {
		defer close(segments)
		defer close(errs)
		defer e.mu.Unlock()

		payload := execRequest{
			Text:         req.Text,
			Voice:        req.Voice,
			Speed:        req.Speed,
			LangCode:     e.cfg.LangCode,
			SampleRate:   e.cfg.SampleRate,
			SplitPattern: SplitPattern,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			errs <- err
			return
		}

		base := e.cmd[0]
		args := append([]string{}, e.cmd[1:]...)
		cmd := exec.CommandContext(ctx, base, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			errs <- err
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- err
			return
		}
		if err := cmd.Start(); err != nil {
			errs <- err
			return
		}

		if _, err := stdin.Write(data); err != nil {
			errs <- err
			cmd.Wait()
			return
		}
		stdin.Close()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		index := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp execResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				errs <- fmt.Errorf("decode runner chunk: %w", err)
				cmd.Wait()
				return
			}
			pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				errs <- fmt.Errorf("decode runner pcm: %w", err)
				cmd.Wait()
				return
			}
			select {
			case segments <- Segment{
				Index:     index,
				Graphemes: resp.Graphemes,
				Phonemes:  resp.Phonemes,
				PCM:       pcm,
			}:
			case <-ctx.Done():
				errs <- ctx.Err()
				cmd.Wait()
				return
			}
			index++
		}
		if err := cmd.Wait(); err != nil {
			errs <- fmt.Errorf("pipeline runner failed: %w", err)
			return
		}
		if scanErr := scanner.Err(); scanErr != nil {
			errs <- scanErr
		}
	}()
	return segments, errs
}

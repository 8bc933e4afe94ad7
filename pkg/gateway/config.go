package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Config holds the statically-configured server parameters validated
// against every StartSession request (§4.7). Field order matches the CLI
// flags in §6.1.
type Config struct {
	Host        string
	Port        int
	CUDADevice  int
	MaxSessions int
	Model       string

	Diffusion              bool
	DiffusionIdentity       uint32
	DiffusionConstantNoise bool

	ExecutionOption ExecutionOption
	FPS             int
	UseGPUSolver    bool
}

// DefaultConfig returns the §4.7 defaults.
func DefaultConfig() Config {
	return Config{
		Host:                   "0.0.0.0",
		Port:                   8765,
		CUDADevice:             0,
		MaxSessions:            4,
		Diffusion:              false,
		DiffusionIdentity:      0,
		DiffusionConstantNoise: true,
		ExecutionOption:        ExecutionSkinTongue,
		FPS:                    60,
		UseGPUSolver:           true,
	}
}

// FrameRate derives the server's configured frame rate as a rational, per
// §4.7 ("fps=60" is shorthand for {60,1}).
func (c Config) FrameRate() FrameRate {
	return FrameRate{Numerator: c.FPS, Denominator: 1}
}

// canonicalizeModelPath implements §4.7/§9's platform-tailored
// canonicalization: backslash to slash, strip a leading "./", trim
// whitespace, strip trailing slashes, and lowercase (this server treats
// paths as case-insensitive, matching the original's Windows-derived
// behavior).
func canonicalizeModelPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimRight(p, "/")
	return strings.ToLower(p)
}

// ValidateStartSession checks req against cfg and meta, returning an error
// whose message is exactly the text a client may match on (§ SUPPLEMENTED
// FEATURES, reproduced verbatim from main.cpp's ValidateStartSessionRequest).
// A nil return means the request matches the server's configuration.
func ValidateStartSession(req *StartSessionRequest, cfg Config, meta Metadata) error {
	if req.Model != nil {
		var model string
		if err := json.Unmarshal(req.Model, &model); err != nil {
			return newValidationError("StartSession.model must be a string")
		}
		if canonicalizeModelPath(model) != canonicalizeModelPath(cfg.Model) {
			return newValidationError("Requested model does not match server model")
		}
	}

	if err := validateFrameRate(req, cfg); err != nil {
		return err
	}

	if req.Options != nil {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(req.Options, &raw); err != nil {
			return newValidationError("StartSession.options must be an object")
		}
		if v, ok := raw["use_gpu_solver"]; ok {
			var got bool
			if err := json.Unmarshal(v, &got); err != nil {
				return newValidationError("options.use_gpu_solver must be boolean")
			}
			if got != cfg.UseGPUSolver {
				return newValidationError("options.use_gpu_solver does not match server")
			}
		}
		if v, ok := raw["execution_option"]; ok {
			var got string
			if err := json.Unmarshal(v, &got); err != nil {
				return newValidationError("options.execution_option must be a string")
			}
			opt, ok := ParseExecutionOption(got)
			if !ok || opt != cfg.ExecutionOption {
				return newValidationError("options.execution_option does not match server")
			}
		}
	}

	return nil
}

// validateFrameRate handles both StartSessionRequest.FPS (a positive
// integer shorthand) and .FrameRate (an explicit {numerator,denominator}
// object); at most one is expected but both are checked if both are
// present.
func validateFrameRate(req *StartSessionRequest, cfg Config) error {
	serverRate := cfg.FrameRate()

	if req.FPS != nil {
		var fps int
		if err := json.Unmarshal(req.FPS, &fps); err != nil || fps <= 0 {
			return newValidationError("StartSession.fps must be a positive integer")
		}
		if fps != serverRate.Numerator || serverRate.Denominator != 1 {
			return newValidationError(
				"Requested frame_rate %d/%d does not match server %d/%d",
				fps, 1, serverRate.Numerator, serverRate.Denominator)
		}
	}

	if req.FrameRate != nil {
		var fr FrameRateMessage
		if err := json.Unmarshal(req.FrameRate, &fr); err != nil {
			return newValidationError("StartSession.frame_rate must be an object with numerator and denominator")
		}
		if fr.Numerator != serverRate.Numerator || fr.Denominator != serverRate.Denominator {
			return newValidationError(
				"Requested frame_rate %d/%d does not match server %d/%d",
				fr.Numerator, fr.Denominator, serverRate.Numerator, serverRate.Denominator)
		}
	}

	return nil
}

// parsePositiveInt is a small helper for flag-adjacent string parsing paths
// (e.g. a YAML scalar that arrived as a string rather than a number).
func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

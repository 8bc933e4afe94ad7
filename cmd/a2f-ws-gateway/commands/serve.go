package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/a2fsdk/inference-gateway/pkg/gateway"
	"github.com/a2fsdk/inference-gateway/pkg/gateway/softexec"
)

var (
	flagHost           string
	flagPort           int
	flagCUDADevice     int
	flagMaxSessions    int
	flagModel          string
	flagDiffusion      bool
	flagIdentity       uint32
	flagConstantNoise  bool
	flagExecutionOpt   string
	flagFPS            int
	flagUseGPUSolver   bool
	flagConfigPath     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inference gateway server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagHost, "host", "0.0.0.0", "Listen host (IPv4)")
	serveCmd.Flags().IntVar(&flagPort, "port", 8765, "Listen port")
	serveCmd.Flags().IntVar(&flagCUDADevice, "cuda_device", 0, "CUDA device index")
	serveCmd.Flags().IntVar(&flagMaxSessions, "max_sessions", 4, "Maximum concurrent sessions")
	serveCmd.Flags().StringVar(&flagModel, "model", "", "Path to model.json, or s3://bucket/key")
	serveCmd.Flags().BoolVar(&flagDiffusion, "diffusion", false, "Use the diffusion executor variant")
	serveCmd.Flags().Uint32Var(&flagIdentity, "identity", 0, "Diffusion identity")
	serveCmd.Flags().BoolVar(&flagConstantNoise, "constant_noise", true, "Diffusion constant noise")
	serveCmd.Flags().StringVar(&flagExecutionOpt, "execution_option", "SkinTongue", "Execution option: SkinTongue|Skin|Tongue|None")
	serveCmd.Flags().IntVar(&flagFPS, "fps", 60, "Target output frame rate")
	serveCmd.Flags().BoolVar(&flagUseGPUSolver, "use_gpu_solver", true, "Require a GPU-typed solver result")
	serveCmd.Flags().StringVar(&flagConfigPath, "config", "", "Optional YAML config file; flags override file values")
}

// fileConfig is the YAML shape accepted by --config; field presence (not
// zero-value) decides whether it overrides a compiled-in default, but a
// flag explicitly set on the command line always wins over the file
// (§6.1, §AMBIENT STACK three-tier configuration).
type fileConfig struct {
	Host            *string `yaml:"host"`
	Port            *int    `yaml:"port"`
	CUDADevice      *int    `yaml:"cuda_device"`
	MaxSessions     *int    `yaml:"max_sessions"`
	Model           *string `yaml:"model"`
	Diffusion       *bool   `yaml:"diffusion"`
	DiffusionIdentity *uint32 `yaml:"diffusion_identity"`
	ConstantNoise   *bool   `yaml:"diffusion_constant_noise"`
	ExecutionOption *string `yaml:"execution_option"`
	FPS             *int    `yaml:"fps"`
	UseGPUSolver    *bool   `yaml:"use_gpu_solver"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config: %w", err)
	}
	return fc, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
	logger := gateway.SlogLogger(slog.Default())

	cfg := gateway.DefaultConfig()
	cfg.Host = flagHost
	cfg.Port = flagPort
	cfg.CUDADevice = flagCUDADevice
	cfg.MaxSessions = flagMaxSessions
	cfg.Model = flagModel
	cfg.Diffusion = flagDiffusion
	cfg.DiffusionIdentity = flagIdentity
	cfg.DiffusionConstantNoise = flagConstantNoise
	cfg.FPS = flagFPS
	cfg.UseGPUSolver = flagUseGPUSolver
	if opt, ok := gateway.ParseExecutionOption(flagExecutionOpt); ok {
		cfg.ExecutionOption = opt
	} else {
		return fmt.Errorf("unknown execution_option %q", flagExecutionOpt)
	}

	if flagConfigPath != "" {
		fc, err := loadFileConfig(flagConfigPath)
		if err != nil {
			return err
		}
		applyFileConfig(&cfg, fc, cmd)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolvedModel, err := gateway.ResolveModelPath(ctx, cfg.Model)
	if err != nil {
		return fmt.Errorf("resolve model: %w", err)
	}
	cfg.Model = resolvedModel

	srv, err := gateway.NewServer(cfg, softexec.Factory{}, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	printBanner(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.InfoPrintf("shutting down...")
		cancel()
	}()

	logger.InfoPrintf("listening on %s", srv.Addr())
	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.InfoPrintf("server stopped")
	return nil
}

// applyFileConfig overlays fc onto cfg for every field the file sets, then
// re-applies any flag the user explicitly passed on the command line, so
// flags always win over the file (§AMBIENT STACK).
func applyFileConfig(cfg *gateway.Config, fc fileConfig, cmd *cobra.Command) {
	if fc.Host != nil {
		cfg.Host = *fc.Host
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.CUDADevice != nil {
		cfg.CUDADevice = *fc.CUDADevice
	}
	if fc.MaxSessions != nil {
		cfg.MaxSessions = *fc.MaxSessions
	}
	if fc.Model != nil {
		cfg.Model = *fc.Model
	}
	if fc.Diffusion != nil {
		cfg.Diffusion = *fc.Diffusion
	}
	if fc.DiffusionIdentity != nil {
		cfg.DiffusionIdentity = *fc.DiffusionIdentity
	}
	if fc.ConstantNoise != nil {
		cfg.DiffusionConstantNoise = *fc.ConstantNoise
	}
	if fc.FPS != nil {
		cfg.FPS = *fc.FPS
	}
	if fc.UseGPUSolver != nil {
		cfg.UseGPUSolver = *fc.UseGPUSolver
	}
	if fc.ExecutionOption != nil {
		if opt, ok := gateway.ParseExecutionOption(*fc.ExecutionOption); ok {
			cfg.ExecutionOption = opt
		}
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = flagHost
	}
	if flags.Changed("port") {
		cfg.Port = flagPort
	}
	if flags.Changed("cuda_device") {
		cfg.CUDADevice = flagCUDADevice
	}
	if flags.Changed("max_sessions") {
		cfg.MaxSessions = flagMaxSessions
	}
	if flags.Changed("model") {
		cfg.Model = flagModel
	}
	if flags.Changed("diffusion") {
		cfg.Diffusion = flagDiffusion
	}
	if flags.Changed("identity") {
		cfg.DiffusionIdentity = flagIdentity
	}
	if flags.Changed("constant_noise") {
		cfg.DiffusionConstantNoise = flagConstantNoise
	}
	if flags.Changed("fps") {
		cfg.FPS = flagFPS
	}
	if flags.Changed("use_gpu_solver") {
		cfg.UseGPUSolver = flagUseGPUSolver
	}
	if flags.Changed("execution_option") {
		if opt, ok := gateway.ParseExecutionOption(flagExecutionOpt); ok {
			cfg.ExecutionOption = opt
		}
	}
}

var bannerTheme = struct {
	title lipgloss.Style
	label lipgloss.Style
}{
	title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")).Padding(0, 1),
	label: lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
}

// printBanner renders a one-time startup banner before the accept loop
// starts, reproducing the original server's startup log lines (§ SUPPLEMENTED
// FEATURES) with lipgloss styling instead of raw fmt.Println.
func printBanner(cfg gateway.Config) {
	title := bannerTheme.title.Render(fmt.Sprintf("Starting Audio2Face inference server on ws://%s:%d", cfg.Host, cfg.Port))
	model := bannerTheme.label.Render(fmt.Sprintf("Model: %s", cfg.Model))
	sessions := bannerTheme.label.Render(fmt.Sprintf("Max sessions: %d", cfg.MaxSessions))
	fmt.Println(title)
	fmt.Println(model)
	fmt.Println(sessions)
}

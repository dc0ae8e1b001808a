// Package cli implements the interactive REPL gateway for Fundi.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jkaninda/fundi/internal/agent"
	"github.com/jkaninda/fundi/internal/codegen"
	"github.com/jkaninda/fundi/internal/executor"
	"github.com/jkaninda/fundi/internal/history"
	"github.com/jkaninda/fundi/internal/observability"
	"github.com/jkaninda/fundi/internal/repair"
)

// ANSI escape codes for terminal output.
const (
	cBold    = "\033[1m"
	cDim     = "\033[2m"
	cGreen   = "\033[92m"
	cYellow  = "\033[93m"
	cRed     = "\033[91m"
	cCyan    = "\033[96m"
	cMagenta = "\033[95m"
	cReset   = "\033[0m"
)

// ModelProvider is the slice of the LLM client the REPL needs for the
// /model command and startup discovery.
type ModelProvider interface {
	Model() string
	SetModel(model string)
	ListModels(ctx context.Context) ([]string, error)
}

// Config configures the REPL.
type Config struct {
	FallbackModel string             // Used when the configured model is not installed.
	MaxFixDefault int                // Initial auto-fix ceiling. 0 = 3.
	MaxMessages   int                // Conversation retention cap. 0 = default.
	PersistModel  func(string) error // Called when /model changes the model. May be nil.
}

// Gateway is the interactive command-line interface. It owns its repair
// pipeline: the loop executes through the gateway itself so every attempt is
// rendered as it happens, and /max_fix can adjust the ceiling.
type Gateway struct {
	config   Config
	agent    *agent.Agent
	exec     *executor.Executor
	provider ModelProvider
	loop     *repair.Loop
	logger   *slog.Logger
	done     chan struct{} // closed by Stop to signal shutdown

	scanner     *bufio.Scanner
	conv        *codegen.Conversation
	lastCode    string
	autoExecute bool
	execRuns    int // Executions printed within the current repair run.
}

// sandboxFunc adapts a function to repair.Sandbox.
type sandboxFunc func(ctx context.Context, code string) *executor.Result

func (f sandboxFunc) Execute(ctx context.Context, code string) *executor.Result {
	return f(ctx, code)
}

// NewGateway creates a REPL gateway. store and metrics may be nil.
func NewGateway(cfg Config, gen agent.Generator, exec *executor.Executor, provider ModelProvider, store history.Store, metrics *observability.MetricsCollector, logger *slog.Logger) *Gateway {
	g := &Gateway{
		config:      cfg,
		exec:        exec,
		provider:    provider,
		logger:      logger,
		done:        make(chan struct{}),
		conv:        codegen.NewConversationWithLimits(cfg.MaxMessages, 0),
		autoExecute: true,
	}
	g.loop = repair.New(repair.Config{MaxAttempts: cfg.MaxFixDefault}, gen, sandboxFunc(g.runAttempt), nil, logger)
	g.agent = agent.New(gen, g.loop, exec, store, metrics, logger)
	return g
}

// Start runs the interactive REPL. Blocks until ctx is cancelled,
// Stop is called, or the user quits.
func (g *Gateway) Start(ctx context.Context) error {
	g.scanner = bufio.NewScanner(os.Stdin)
	g.exec.SetAskFunc(g.askInput)

	g.printBanner()
	if !g.discoverModel(ctx) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%sBye!%s\n", cDim, cReset)
			return nil
		case <-g.done:
			fmt.Printf("\n%sBye!%s\n", cDim, cReset)
			return nil
		default:
		}

		fmt.Printf("\n%s%sYou > %s", cGreen, cBold, cReset)
		if !g.scanner.Scan() {
			fmt.Printf("\n%sBye!%s\n", cDim, cReset)
			break
		}

		line := strings.TrimSpace(g.scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := g.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		g.handlePrompt(ctx, line)
	}

	if err := g.scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}

// Stop signals the REPL to shut down.
func (g *Gateway) Stop(_ context.Context) error {
	select {
	case <-g.done:
		// Already closed.
	default:
		close(g.done)
	}
	return nil
}

// discoverModel verifies the configured model is installed, falling back
// when it is not. Returns false when Ollama is unreachable.
func (g *Gateway) discoverModel(ctx context.Context) bool {
	models, err := g.provider.ListModels(ctx)
	if err != nil || len(models) == 0 {
		fmt.Printf("%sError: Cannot connect to Ollama. Run 'ollama serve' first.%s\n", cRed, cReset)
		return false
	}

	if modelInstalled(g.provider.Model(), models) {
		return true
	}

	fmt.Printf("%sWarning: Model '%s' not found.%s\n", cYellow, g.provider.Model(), cReset)
	fmt.Printf("%sAvailable: %s%s\n", cDim, strings.Join(models, ", "), cReset)
	if g.config.FallbackModel != "" && modelInstalled(g.config.FallbackModel, models) {
		g.provider.SetModel(g.config.FallbackModel)
		fmt.Printf("%sUsing fallback: %s%s\n", cYellow, g.config.FallbackModel, cReset)
	}
	return true
}

// modelInstalled matches a model name against the installed list, with or
// without the tag suffix ("qwen3" matches "qwen3:4b").
func modelInstalled(name string, installed []string) bool {
	for _, m := range installed {
		if m == name || strings.SplitN(m, ":", 2)[0] == name {
			return true
		}
	}
	return false
}

// handleCommand processes a slash command. Returns true when the REPL
// should exit.
func (g *Gateway) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	// /save keeps the path's original case.
	rawFields := strings.Fields(line)

	switch fields[0] {
	case "/quit", "/exit":
		fmt.Printf("%sBye!%s\n", cDim, cReset)
		return true

	case "/help":
		g.printHelp()

	case "/run":
		if g.lastCode == "" {
			fmt.Printf("%sNo code to run.%s\n", cYellow, cReset)
			break
		}
		fmt.Printf("\n%sRe-running last code...%s\n", cCyan, cReset)
		res := g.exec.Execute(ctx, g.lastCode)
		g.printResult(res)

	case "/save":
		if len(rawFields) < 2 {
			fmt.Printf("%sUsage: /save <filepath>%s\n", cYellow, cReset)
			break
		}
		if g.lastCode == "" {
			fmt.Printf("%sNo code to save.%s\n", cYellow, cReset)
			break
		}
		msg, err := g.exec.SaveCode(g.lastCode, rawFields[1])
		if err != nil {
			fmt.Printf("%s%v%s\n", cRed, err, cReset)
		} else {
			fmt.Printf("%s%s%s\n", cGreen, msg, cReset)
		}

	case "/model":
		if len(rawFields) >= 2 {
			g.provider.SetModel(rawFields[1])
			if g.config.PersistModel != nil {
				if err := g.config.PersistModel(rawFields[1]); err != nil {
					g.logger.Warn("persisting model choice failed", slog.String("error", err.Error()))
				}
			}
			fmt.Printf("%sModel set to: %s%s\n", cGreen, rawFields[1], cReset)
		} else {
			fmt.Printf("%sCurrent model: %s%s\n", cCyan, g.provider.Model(), cReset)
			if models, err := g.provider.ListModels(ctx); err == nil {
				fmt.Printf("%sAvailable: %s%s\n", cDim, strings.Join(models, ", "), cReset)
			}
		}

	case "/auto":
		if len(fields) >= 2 && (fields[1] == "on" || fields[1] == "off") {
			g.autoExecute = fields[1] == "on"
			fmt.Printf("%sAuto-execution: %s%s\n", cGreen, onOff(g.autoExecute), cReset)
		} else {
			fmt.Printf("%sAuto-execution: %s%s\n", cCyan, onOff(g.autoExecute), cReset)
		}

	case "/max_fix":
		if len(fields) >= 2 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				g.loop.SetMaxAttempts(n)
				fmt.Printf("%sMax fix attempts: %d%s\n", cGreen, n, cReset)
				break
			}
		}
		fmt.Printf("%sMax fix attempts: %d%s\n", cCyan, g.loop.MaxAttempts(), cReset)

	default:
		fmt.Printf("%sUnknown command. Type /help%s\n", cYellow, cReset)
	}
	return false
}

// handlePrompt sends a natural-language request through the agent.
func (g *Gateway) handlePrompt(ctx context.Context, prompt string) {
	fmt.Printf("\n%s%sAgent >%s %sThinking...%s\r", cMagenta, cBold, cReset, cDim, cReset)

	gen, err := g.agent.Generate(ctx, &agent.Input{ClientID: "repl", Prompt: prompt, Conv: g.conv})
	if err != nil {
		fmt.Printf("%sError: %v%s\n", cRed, err, cReset)
		return
	}

	if !gen.HasCode {
		fmt.Printf("%s%sAgent >%s %s\n", cMagenta, cBold, cReset, gen.Raw)
		return
	}

	g.lastCode = gen.Code
	fmt.Printf("%s%sAgent >%s Here's the code:\n\n", cMagenta, cBold, cReset)
	printCode(gen.Code)

	if !g.autoExecute {
		return
	}

	g.execRuns = 0
	out := g.agent.Repair(ctx, &agent.Input{ClientID: "repl", Prompt: prompt, Conv: g.conv}, gen.Code)
	g.lastCode = out.Code

	switch out.State {
	case repair.StateMaxAttemptsExceeded:
		fmt.Printf("%sMax fix attempts reached.%s\n", cRed, cReset)
	case repair.StateGenerationFailed:
		fmt.Printf("%sCould not generate a fix.%s\n", cRed, cReset)
	}
}

// runAttempt is the repair loop's sandbox: it prints each attempt as it
// happens, then executes through the real executor.
func (g *Gateway) runAttempt(ctx context.Context, code string) *executor.Result {
	if g.execRuns == 0 {
		fmt.Printf("\n%sExecuting...%s\n", cCyan, cReset)
	} else {
		fmt.Printf("\n%sAuto-fixing (attempt %d/%d)...%s\n", cYellow, g.execRuns, g.loop.MaxAttempts(), cReset)
		fmt.Printf("\n%s%sAgent >%s Fixed code:\n\n", cMagenta, cBold, cReset)
		printCode(code)
		fmt.Printf("\n%sRe-executing...%s\n", cCyan, cReset)
	}
	g.execRuns++

	res := g.exec.Execute(ctx, code)
	g.printResult(res)
	return res
}

// askInput answers one detected input() prompt from the terminal.
// EOF or interrupt cancels the execution.
func (g *Gateway) askInput(prompt string) (string, bool) {
	fmt.Printf("%s[input] %s%s", cYellow, prompt, cReset)
	if !g.scanner.Scan() {
		return "", false
	}
	return g.scanner.Text(), true
}

// --- Rendering ---

func (g *Gateway) printBanner() {
	fmt.Printf(`%s%s
╔══════════════════════════════════════════╗
║              Fundi  CLI                  ║
║   Local AI Coding Assistant (Offline)    ║
╚══════════════════════════════════════════╝%s
%sModel: %s | Engine: Ollama%s
%sType your request. Commands: /help for list%s
`, cCyan, cBold, cReset, cDim, g.provider.Model(), cReset, cDim, cReset)
}

func (g *Gateway) printHelp() {
	fmt.Printf(`%sCommands:%s
  %s/run%s            Re-run last code
  %s/save <path>%s    Save last code to file
  %s/model%s          Show/change model
  %s/auto on|off%s    Toggle auto-execution (default: on)
  %s/max_fix <n>%s    Set max auto-fix attempts (default: %d)
  %s/help%s           Show this help
  %s/quit%s           Exit

%sUsage:%s
  Type a request in natural language.
  The AI generates Python code, executes it, and auto-fixes errors.
`,
		cBold, cReset,
		cCyan, cReset, cCyan, cReset, cCyan, cReset, cCyan, cReset,
		cCyan, cReset, repair.DefaultMaxAttempts, cCyan, cReset, cCyan, cReset,
		cBold, cReset,
	)
}

// printCode renders a numbered code listing.
func printCode(code string) {
	lines := strings.Split(code, "\n")
	width := len(strconv.Itoa(len(lines)))
	for i, line := range lines {
		fmt.Printf("  %s%*d |%s %s\n", cDim, width, i+1, cReset, line)
	}
}

// printResult renders a classified execution result.
func (g *Gateway) printResult(res *executor.Result) {
	elapsed := res.Elapsed.Seconds()
	if res.Success() {
		fmt.Printf("\n%s%s[OK]%s %s(%.1fs)%s\n", cGreen, cBold, cReset, cDim, elapsed, cReset)
		if out := strings.TrimSpace(res.Stdout); out != "" {
			fmt.Printf("%sOutput:%s\n", cGreen, cReset)
			printIndented(out)
		}
		return
	}

	fmt.Printf("\n%s%s[ERROR]%s %s(%.1fs)%s\n", cRed, cBold, cReset, cDim, elapsed, cReset)
	if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
		fmt.Printf("%sError:%s\n", cRed, cReset)
		printIndented(errOut)
	}
	if out := strings.TrimSpace(res.Stdout); out != "" {
		fmt.Printf("%sOutput before error:%s\n", cDim, cReset)
		printIndented(out)
	}
}

func printIndented(text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Printf("  %s\n", line)
	}
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

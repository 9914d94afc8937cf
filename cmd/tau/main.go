// tau is the CLI entrypoint wiring the RPC dispatcher, the tool policy
// pipeline's command-file mode, and the capabilities/validate-frame
// preflights, following the teacher's flag-based subcommand dispatch
// in cmd/agentflow.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/njfio/tau/api/httpserver"
	"github.com/njfio/tau/channel/github"
	"github.com/njfio/tau/operator"
	"github.com/njfio/tau/rpc"
	"github.com/njfio/tau/toolpolicy"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tau", flag.ContinueOnError)
	rpcCapabilities := fs.Bool("rpc-capabilities", false, "print the capabilities.response frame and exit")
	rpcValidateFrameFile := fs.String("rpc-validate-frame-file", "", "parse and validate a single RPC frame file without dispatching it")
	rpcDispatchFrameFile := fs.String("rpc-dispatch-frame-file", "", "dispatch a single RPC frame file and print its response")
	rpcDispatchNDJSONFile := fs.String("rpc-dispatch-ndjson-file", "", "dispatch every line of an NDJSON frame file independently")
	rpcServeNDJSON := fs.Bool("rpc-serve-ndjson", false, "serve RPC frames interactively over stdin/stdout")
	rpcServeHTTP := fs.String("rpc-serve-http", "", "serve the RPC websocket transport and operator read endpoints on this address, e.g. :8080")
	commandFile := fs.String("command-file", "", "execute a file of tool-policy invocations")
	commandFileErrorMode := fs.String("command-file-error-mode", "fail-fast", "fail-fast|continue-on-error")
	githubDemoIndex := fs.Bool("github-demo-index", false, "list unprocessed GitHub issue comments the bridge would handle, without writing anything")
	githubOwner := fs.String("github-owner", "", "GitHub repository owner, for --github-demo-index")
	githubRepo := fs.String("github-repo", "", "GitHub repository name, for --github-demo-index")
	githubLabels := fs.String("github-labels", "", "comma-separated required labels, for --github-demo-index")
	version := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *version {
		fmt.Printf("tau %s (build %s, commit %s)\n", Version, BuildTime, GitCommit)
		return 0
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx := context.Background()
	dispatcher := rpc.NewDispatcher(logger, noopRunWorker)

	// Preflight modes take precedence over executing any user prompt or
	// command file, in the documented order.
	switch {
	case *rpcCapabilities:
		return runCapabilities(dispatcher, ctx)
	case *rpcValidateFrameFile != "":
		return runValidateFrameFile(*rpcValidateFrameFile)
	case *rpcDispatchFrameFile != "":
		return runDispatchFrameFile(dispatcher, ctx, *rpcDispatchFrameFile)
	case *rpcDispatchNDJSONFile != "":
		return runDispatchNDJSONFile(dispatcher, ctx, *rpcDispatchNDJSONFile)
	case *rpcServeNDJSON:
		return runServeNDJSON(dispatcher, ctx)
	case *rpcServeHTTP != "":
		return runServeHTTP(dispatcher, *rpcServeHTTP)
	case *commandFile != "":
		return runCommandFile(ctx, *commandFile, *commandFileErrorMode)
	case *githubDemoIndex:
		return runGitHubDemoIndex(ctx, *githubOwner, *githubRepo, *githubLabels)
	default:
		fs.Usage()
		return 2
	}
}

func noopRunWorker(ctx context.Context, runID string, emit func(rpc.Frame)) {
	<-ctx.Done()
}

func runCapabilities(d *rpc.Dispatcher, ctx context.Context) int {
	resp, _ := d.Dispatch(ctx, rpc.Frame{Kind: rpc.KindCapabilitiesRequest, RequestID: "preflight"}, nil)
	encoded, err := resp.Encode()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}

func runValidateFrameFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	frame, err := rpc.ParseFrame(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid frame:", err)
		return 1
	}
	encoded, _ := frame.Encode()
	fmt.Println(string(encoded))
	return 0
}

func runDispatchFrameFile(d *rpc.Dispatcher, ctx context.Context, path string) int {
	isError, err := d.DispatchFrameFile(ctx, path, os.ReadFile, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if isError {
		fmt.Fprintln(os.Stderr, "error_count: 1")
		return 1
	}
	return 0
}

func runDispatchNDJSONFile(d *rpc.Dispatcher, ctx context.Context, path string) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer f.Close()

	errorCount, err := d.DispatchNDJSONFile(ctx, f, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if errorCount > 0 {
		fmt.Fprintf(os.Stderr, "error_count: %d\n", errorCount)
		return 1
	}
	return 0
}

func runGitHubDemoIndex(ctx context.Context, owner, repo, labelsCSV string) int {
	if owner == "" || repo == "" {
		fmt.Fprintln(os.Stderr, "--github-owner and --github-repo are required")
		return 2
	}
	token := os.Getenv("TAU_GITHUB_TOKEN")
	client := github.NewHTTPClient(ctx, owner, repo, "tau-bot", token)

	var labels []string
	if labelsCSV != "" {
		labels = strings.Split(labelsCSV, ",")
	}
	bridge := &github.Bridge{Client: client, Filter: github.Filter{RequiredLabels: labels}}

	rows, err := bridge.DemoIndex(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	encoder := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		_ = encoder.Encode(row)
	}
	return 0
}

func runServeHTTP(d *rpc.Dispatcher, addr string) int {
	stateDir := os.Getenv("TAU_OPERATOR_STATE_DIR")
	cfg := httpserver.Config{JWTSecret: os.Getenv("TAU_RPC_JWT_SECRET")}
	if stateDir != "" {
		snapshotPath := stateDir + "/snapshot.json"
		cfg.LoadSnapshot = func() (operator.Snapshot, error) {
			return operator.LoadSnapshot(snapshotPath)
		}
	}

	handler := httpserver.New(d, cfg)
	fmt.Printf("serving on %s\n", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runServeNDJSON(d *rpc.Dispatcher, ctx context.Context) int {
	if err := d.ServeNDJSON(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// commandFileLine is one line of a --command-file: a tool policy plus
// the invocation to run through it.
type commandFileLine struct {
	Policy     toolpolicy.Policy     `json:"policy"`
	Invocation toolpolicy.Invocation `json:"invocation"`
}

func runCommandFile(ctx context.Context, path, errorMode string) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer f.Close()

	collab := toolpolicy.DefaultCollaborators()
	encoder := json.NewEncoder(os.Stdout)
	errorCount := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cmd commandFileLine
		if err := json.Unmarshal(line, &cmd); err != nil {
			errorCount++
			fmt.Fprintln(os.Stderr, "malformed command line:", err)
			if errorMode == "fail-fast" {
				return 1
			}
			continue
		}

		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		result := toolpolicy.Evaluate(runCtx, cmd.Policy, cmd.Invocation, collab)
		cancel()

		_ = encoder.Encode(result)
		if result.PolicyDecision == toolpolicy.DecisionDeny {
			errorCount++
			if errorMode == "fail-fast" {
				fmt.Fprintf(os.Stderr, "error_count: %d\n", errorCount)
				return 1
			}
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if errorCount > 0 {
		fmt.Fprintf(os.Stderr, "error_count: %d\n", errorCount)
		return 1
	}
	return 0
}

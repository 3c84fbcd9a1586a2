package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tliron/glsp/protocol_3_16"

	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/completion/accept"
	"github.com/teranos/ghostwrite/completion/lifecycle"
	"github.com/teranos/ghostwrite/completion/session"
	"github.com/teranos/ghostwrite/completion/snapshot"
	"github.com/teranos/ghostwrite/completion/telemetry"
	"github.com/teranos/ghostwrite/errors"
)

// CompleteCmd asks for one completion outside an editor
var CompleteCmd = &cobra.Command{
	Use:   "complete <file>",
	Short: "Request one completion at a position in a file",
	Long: `Run a single completion through the same lifecycle the language server
uses and print the ghost text.

With --accept the completion is committed to an in-memory copy of the file
and the resulting text is printed instead. The file on disk is not changed.

Examples:
  ghostwrite complete main.go --line 12 --col 8
  ghostwrite complete notes.md --line 3 --col 1 --strategy reasoned
  ghostwrite complete main.go --line 12 --col 8 --accept next_line`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

var (
	completeLine     int
	completeCol      int
	completeStrategy string
	completeProvider string
	completeAccept   string
	completeTimeout  time.Duration
	completeJSON     bool
)

func init() {
	CompleteCmd.Flags().IntVar(&completeLine, "line", 1, "Caret line (1-based)")
	CompleteCmd.Flags().IntVar(&completeCol, "col", 1, "Caret column (1-based, in characters)")
	CompleteCmd.Flags().StringVar(&completeStrategy, "strategy", "", "fast, reasoned or block_rewrite (default from config)")
	CompleteCmd.Flags().StringVar(&completeProvider, "provider", "", "Provider: auto, local, openrouter, anthropic")
	CompleteCmd.Flags().StringVar(&completeAccept, "accept", "", "Accept the completion: full, next_line or next_word")
	CompleteCmd.Flags().DurationVar(&completeTimeout, "timeout", 30*time.Second, "Give up after this long")
	CompleteCmd.Flags().BoolVarP(&completeJSON, "json", "j", false, "Output as JSON")
}

// completion is the printable result of a headless request.
type completion struct {
	RequestID  uint64  `json:"request_id"`
	Text       string  `json:"text"`
	Line       uint32  `json:"line"`
	Character  uint32  `json:"character"`
	Strategy   string  `json:"strategy"`
	Model      string  `json:"model,omitempty"`
	LatencyMs  int64   `json:"latency_ms"`
	Cached     bool    `json:"cached"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
	Accepted   string  `json:"accepted,omitempty"`
	Document   string  `json:"document,omitempty"`
}

func runComplete(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	var acceptType *accept.Type
	if completeAccept != "" {
		t, err := accept.ParseType(completeAccept)
		if err != nil {
			return err
		}
		acceptType = &t
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if completeStrategy != "" {
		cfg.Completion.Strategy = completeStrategy
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	st, err := buildStack(cfg, stackOptions{Provider: completeProvider, Verbosity: verbosity})
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), completeTimeout)
	defer cancel()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	req := headlessRequest{
		URI:      "file://" + filepath.ToSlash(abs),
		Text:     string(content),
		Position: protocol.Position{Line: uint32(max(completeLine-1, 0)), Character: uint32(max(completeCol-1, 0))},
		Accept:   acceptType,
	}
	result, err := completeHeadless(ctx, st.sessionConfig(cfg), req)
	if err != nil {
		return err
	}
	return printCompletion(cmd.OutOrStdout(), result, completeJSON)
}

type headlessRequest struct {
	URI      string
	Text     string
	Position protocol.Position
	Accept   *accept.Type
}

// completeHeadless runs one manual request through a session and, when
// asked, accepts the result.
func completeHeadless(ctx context.Context, sc session.Config, req headlessRequest) (*completion, error) {
	w := newWatcher(sc.Telemetry)
	sc.Telemetry = w
	sc.AutoTrigger = false

	client := &headless{}
	mgr := session.NewManager(sc, client)
	client.mgr = mgr
	defer mgr.Shutdown()

	sess, err := mgr.Open(req.URI, snapshot.DetectLanguage(req.URI), 1, req.Text)
	if err != nil {
		return nil, err
	}

	id, err := mgr.Request(req.URI, req.Position, lifecycle.TriggerManual)
	if err != nil {
		return nil, err
	}
	if _, err := w.await(ctx, sess.Machine(), id, telemetry.KindDisplayed); err != nil {
		return nil, err
	}
	shown, ok := client.last(id)
	if !ok {
		return nil, errors.Newf("request %d displayed without a ghost", id)
	}

	item := shown.Item
	out := &completion{
		RequestID:  uint64(id),
		Text:       item.Text,
		Line:       shown.At.Start.Line,
		Character:  shown.At.Start.Character,
		Strategy:   string(mgr.Strategy()),
		Model:      item.Metadata.Model,
		LatencyMs:  item.Metadata.Latency.Milliseconds(),
		Cached:     item.Metadata.Cached,
		Confidence: item.Confidence,
		Rationale:  item.Metadata.Rationale,
	}
	if req.Accept == nil {
		return out, nil
	}

	t, ok, err := mgr.Accept(req.URI, req.Accept)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(errors.ErrConflict, "completion is no longer displayed")
	}
	if _, err := w.await(ctx, sess.Machine(), id, telemetry.KindAccepted); err != nil {
		return nil, err
	}
	out.Accepted = t.String()
	out.Document = sess.Doc.Text()
	return out, nil
}

func printCompletion(w io.Writer, c *completion, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal completion")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	if c.Document != "" {
		_, err := io.WriteString(w, c.Document)
		return err
	}
	_, err := fmt.Fprintln(w, c.Text)
	return err
}

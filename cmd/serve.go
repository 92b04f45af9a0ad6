package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kagedl/resumedl/internal/facade"
)

// rpcRequest is one line of the serve command's stdio transport: a tool
// name, its params verbatim, and a caller-supplied id echoed back so a
// pipelined caller can match responses to requests out of order.
type rpcRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// rpcResponse wraps facade.Envelope with the request id it answers.
type rpcResponse struct {
	ID string `json:"id"`
	facade.Envelope
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tool server: one JSON request per line on stdin, one JSON response per line on stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			return serveLoop(cmd.Context(), a, os.Stdin, os.Stdout)
		},
	}
}

func serveLoop(ctx context.Context, a *app, in *os.File, out *os.File) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(rpcResponse{Envelope: facade.Envelope{Success: false, Error: &facade.ErrorBody{Message: fmt.Sprintf("malformed request: %v", err)}}})
			continue
		}
		env := a.facade.Dispatch(ctx, req.Method, req.Params)
		enc.Encode(rpcResponse{ID: req.ID, Envelope: env})
	}
	return scanner.Err()
}

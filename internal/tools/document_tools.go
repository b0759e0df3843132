package tools

import (
	"context"

	"github.com/nugget/cinebot/internal/prompts"
)

// DocumentAsker answers questions about the session's uploaded document.
type DocumentAsker interface {
	Ready() bool
	Ask(ctx context.Context, question string) (string, error)
}

func movieScriptTool(docs DocumentAsker) *Tool {
	return &Tool{
		Name:        MovieScriptTool,
		Description: prompts.MovieScriptToolDescription,
		Parameters: objectSchema(map[string]any{
			"question": stringParam("Question about the document content"),
		}, "question"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if docs == nil || !docs.Ready() {
				return prompts.NoDocumentLoaded, nil
			}
			answer, err := docs.Ask(ctx, stringArg(args, "question"))
			if err != nil {
				return "Error querying document: " + err.Error(), nil
			}
			return answer, nil
		},
	}
}

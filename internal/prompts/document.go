package prompts

import (
	"fmt"
	"strings"
)

// documentQATemplate grounds answers in excerpts retrieved from the
// session's uploaded document. The format verbs are the document name
// and the excerpts.
const documentQATemplate = `You are an assistant that answers questions using the movie document provided below (%s).
If the answer is not in the document, say that you don't know. Answer completely and clearly.

%s`

// DocumentQAPrompt returns the system prompt for answering a question
// from the given document excerpts, most relevant first.
func DocumentQAPrompt(documentName string, excerpts []string) string {
	return fmt.Sprintf(documentQATemplate, documentName, strings.Join(excerpts, "\n\n---\n\n"))
}

// NoDocumentLoaded is returned to the model when a document question
// arrives before the user has uploaded anything.
const NoDocumentLoaded = "The user has not uploaded a document yet. Ask them to upload one first."

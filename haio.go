// Package haio is the hybrid Human+AI question-answering orchestrator:
// an adaptive assignment engine that routes each question to a human
// marketplace or an AI worker while meeting a caller-specified quality
// requirement at minimum cost. See the question, worker, cache, router,
// assign, and session packages for the engine itself; this file only
// carries the top-level package identity.
package haio

import "fmt"

// Version identifies this module, mirroring the trivial help() banner
// original_source/haio/haio.go and common.py both print ("HumanAI.io").
const Version = "0.1.0"

// String renders the package's version banner.
func String() string {
	return fmt.Sprintf("HumanAI.io v%s", Version)
}

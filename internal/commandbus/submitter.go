package commandbus

import (
	"context"

	"github.com/Tarpelite/xiaoyi-sub000/internal/orchestrator"
	"github.com/Tarpelite/xiaoyi-sub000/internal/state"
)

// OrchestratorSubmitter is the production Submitter: it creates a
// Message the same way the HTTP start-analysis handler does, then
// kicks off the Orchestrator's run on a detached context (the run
// outlives this Kafka handler call; its own IdleTimeout bounds it).
type OrchestratorSubmitter struct {
	Store        state.Store
	Orchestrator *orchestrator.Orchestrator
}

func (s *OrchestratorSubmitter) Submit(ctx context.Context, sessionID, userQuery string) (string, error) {
	msg, err := s.Store.CreateMessage(ctx, sessionID, userQuery)
	if err != nil {
		return "", err
	}
	go s.Orchestrator.Run(context.Background(), msg.ID)
	return msg.ID, nil
}

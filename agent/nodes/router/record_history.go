package routernode

import (
	"fmt"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	statex "github.com/tanpawarit/chative-travel/agent/state"
)

// RecordHistory appends the message before classification so the classifier
// sees it as the latest history entry.
func RecordHistory(in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	store.Touch(in.SessionID, in.Message)
	in.History = store.History(in.SessionID)
	return in, nil
}

package routernode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

func ClassifyPlan(
	ctx context.Context,
	in *GraphState,
	classifier contractx.Classifier,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	plan, err := classifier.Classify(ctx, in.Message.Content, in.History)
	if err == nil {
		err = plan.Validate()
	}
	if err != nil {
		in.ClassifyErr = err
		in.Plan = contractx.Plan{}
		return in, nil
	}

	in.Plan = plan
	return in, nil
}

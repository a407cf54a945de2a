package tools

import (
	"context"
)

var farewells = map[string]string{
	"thanks":  "Thank you for calling! Have a great day!",
	"help":    "I'm glad I could help! Have a wonderful day!",
	"general": "Goodbye! Have a nice day!",
}

type endCallArgs struct {
	FarewellType string `json:"farewell_type"`
}

func (h *handlers) endCall(ctx context.Context, call *Call) (Outcome, error) {
	var args endCallArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	farewell, ok := farewells[args.FarewellType]
	if !ok {
		farewell = farewells["general"]
	}
	call.Session.Terminate()
	return Outcome{Farewell: farewell, Data: map[string]any{"ended": true, "farewell": farewell}}, nil
}

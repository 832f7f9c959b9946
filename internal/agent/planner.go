package agent

import "context"

// plannerNode is a pass-through placeholder between routing and SQL
// generation. A future version could extract dates or entities here to
// narrow the schema snapshot.
type plannerNode struct{}

func (n *plannerNode) Name() string { return nodePlanner }

func (n *plannerNode) Advance(ctx context.Context, s *State) (Update, error) {
	return Update{}, nil
}

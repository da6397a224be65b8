package llms

import "fmt"

// Role describes who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// Turn is a single role-tagged message in a conversation history.
type Turn struct {
	Role    Role
	Content string
}

func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }
func SystemTurn(content string) Turn    { return Turn{Role: RoleSystem, Content: content} }

// Reply is the outcome of dispatching one user utterance.
type Reply struct {
	// Text is the full response, the concatenation of every streamed fragment
	// when streaming was used.
	Text string
	// Role is the role the reply should be recorded under. It is RoleSystem
	// when the pipeline replaced the model output with an apology.
	Role Role
	// History is the working copy of the conversation, including the user
	// turn that was sent. The reply itself is not part of it.
	History []Turn
	// Attempts is the number of provider calls made.
	Attempts int
	// Usage is the token usage reported by the provider, if any.
	Usage *Usage
}

// Turn returns the reply as a turn ready to be recorded.
func (r Reply) Turn() Turn {
	return Turn{Role: r.Role, Content: r.Text}
}

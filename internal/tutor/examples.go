package tutor

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/progress"
)

//go:embed examples.yaml
var examplesYAML []byte

type exampleFile struct {
	Examples []example `yaml:"examples"`
}

type example struct {
	Name  string        `yaml:"name"`
	Turns []exampleTurn `yaml:"turns"`
}

type exampleTurn struct {
	Role     string   `yaml:"role"`
	Text     string   `yaml:"text"`
	Progress *float64 `yaml:"progress"`
}

var fewShot = mustLoadExamples(examplesYAML)

// FewShotExamples returns the worked transcripts placed between the chat
// history and the learner's new message. Each example opens with a system
// separator naming it, and a final separator names the slot the live
// conversation fills. The returned slice is a fresh copy.
func FewShotExamples() []llm.Message {
	out := make([]llm.Message, len(fewShot))
	copy(out, fewShot)
	return out
}

func mustLoadExamples(data []byte) []llm.Message {
	msgs, err := parseExamples(data)
	if err != nil {
		panic(fmt.Sprintf("tutor: embedded examples: %v", err))
	}
	return msgs
}

func parseExamples(data []byte) ([]llm.Message, error) {
	var f exampleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Examples) == 0 {
		return nil, fmt.Errorf("no examples")
	}

	var msgs []llm.Message
	for _, ex := range f.Examples {
		msgs = append(msgs, llm.SystemText(ex.Name))
		for i, turn := range ex.Turns {
			switch llm.Role(turn.Role) {
			case llm.RoleUser:
				msgs = append(msgs, llm.UserText(turn.Text))
			case llm.RoleAssistant:
				if turn.Progress == nil {
					return nil, fmt.Errorf("%s turn %d: assistant turn without progress", ex.Name, i)
				}
				msgs = append(msgs, llm.AssistantText(progress.Format(*turn.Progress)+"\n"+turn.Text))
			default:
				return nil, fmt.Errorf("%s turn %d: unsupported role %q", ex.Name, i, turn.Role)
			}
		}
	}
	msgs = append(msgs, llm.SystemText(fmt.Sprintf("Example %d", len(f.Examples)+1)))
	return msgs, nil
}

package trace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Step is one classified unit of work inside a trace group. Steps in aside
// categories keep Number 0 and are excluded from the visible step count.
type Step struct {
	Number    int       `json:"stepNumber"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	FullJSON  string    `json:"fullJson,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SubSteps  []Step    `json:"subTasks,omitempty"`
}

// Group accumulates the steps of one collaborator within one conversation
// turn. Title is recomputed on every append.
type Group struct {
	ID           string    `json:"id"`
	TurnID       string    `json:"turnId"`
	Collaborator string    `json:"collaboratorName"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"startTime"`
	Steps        []Step    `json:"steps"`
}

// StepCount returns the number of visible (non-aside) steps.
func (g *Group) StepCount() int {
	n := 0
	for _, s := range g.Steps {
		if s.Number > 0 {
			n++
		}
	}
	return n
}

// DisplayName maps the routing classifier sentinel to its display form.
func (g *Group) DisplayName() string {
	return displayName(g.Collaborator)
}

func displayName(collaborator string) string {
	if collaborator == CollaboratorRouting {
		return "Routing Classifier"
	}
	return collaborator
}

// Aggregator groups classified trace events by (turn, collaborator). It is
// not safe for concurrent use; callers serialize access (the conversation
// store funnels all appends through its own lock).
type Aggregator struct {
	// Clock supplies timestamps for steps and group durations. Tests
	// substitute a fixed clock.
	Clock func() time.Time

	groups []*Group
	index  map[string]*Group
}

// NewAggregator returns an empty aggregator using the wall clock.
func NewAggregator() *Aggregator {
	return &Aggregator{
		Clock: time.Now,
		index: make(map[string]*Group),
	}
}

// Groups returns the accumulated groups in creation order.
func (a *Aggregator) Groups() []*Group {
	return a.groups
}

// Ingest classifies raw and appends the result. See Append.
func (a *Aggregator) Ingest(turnID string, raw Envelope) *Group {
	return a.Append(turnID, Classify(raw))
}

// Append records one classified event and returns the affected group. Events
// from the same collaborator within a turn share a group; Guardrails events
// always start a fresh group, one per check.
func (a *Aggregator) Append(turnID string, c Classification) *Group {
	now := a.Clock()

	var group *Group
	key := turnID + "\x00" + c.Collaborator
	if c.Collaborator != CollaboratorGuardrails {
		group = a.index[key]
	}

	if group == nil {
		group = &Group{
			ID:           fmt.Sprintf("trace-group-%s-%s-%s", turnID, c.Collaborator, uuid.NewString()[:8]),
			TurnID:       turnID,
			Collaborator: c.Collaborator,
			StartTime:    now,
		}
		a.groups = append(a.groups, group)
		if c.Collaborator != CollaboratorGuardrails {
			a.index[key] = group
		}
	}

	group.Steps = append(group.Steps, buildStep(group, c, now))
	group.Title = fmt.Sprintf("%s (%.2f seconds, %d steps)",
		group.DisplayName(), now.Sub(group.StartTime).Seconds(), group.StepCount())
	return group
}

// subStepLabels names the immediate sub-step created for compound event
// categories. Each such event is its own step with exactly one sub-step;
// later related events never merge into an earlier step.
var subStepLabels = map[string]string{
	TitleActionGroupTool:    "Action Group Input",
	TitleKnowledgeBaseInput: "Knowledge Base Input",
	TitleInvokingModel:      "Model Invocation Input",
	TitleObservation:        "Observation",
}

func buildStep(group *Group, c Classification, now time.Time) Step {
	number := 0
	if !c.IsAside {
		number = group.StepCount() + 1
	}

	step := Step{
		Number:    number,
		Title:     stepTitle(c, number),
		Content:   c.Content,
		FullJSON:  c.FullJSON,
		Timestamp: now,
	}

	if label, ok := subStepLabels[c.Title]; ok {
		step.SubSteps = []Step{{
			Title:     fmt.Sprintf("Step %d.1 - %s (0 seconds)", number, label),
			Content:   c.Content,
			FullJSON:  c.FullJSON,
			Timestamp: now,
		}}
		step.Content = ""
		step.FullJSON = ""
	}

	return step
}

func stepTitle(c Classification, number int) string {
	if c.IsAside {
		return fmt.Sprintf("%s (0 seconds)", c.Title)
	}
	if c.Title == "" {
		return fmt.Sprintf("Step %d (0 seconds)", number)
	}
	label := c.Title
	if label == TitleKnowledgeBaseInput {
		label = "Knowledge Base Tool"
	}
	return fmt.Sprintf("Step %d - %s (0 seconds)", number, label)
}

package trace

import "fmt"

// Step titles produced by classification. Rationale, Final Response and the
// two Observation titles are asides: they carry commentary rather than an
// orchestration step and never increment the visible step counter.
const (
	TitleObservation        = "Observation"
	TitleFinalResponse      = "Final Response"
	TitleObservationFinal   = "Observation - Final Response"
	TitleRationale          = "Rationale"
	TitleGuardrailCheck     = "Guardrail Check"
	TitleInvokingModel      = "Invoking Model"
	TitleActionGroupTool    = "Action Group Tool"
	TitleKnowledgeBaseInput = "Knowledge Base Input"
	TitleKnowledgeBaseReply = "Knowledge Base Response"
	TitleRoutingDecision    = "Routing Classifier Decision"
	TitleClassifyingIntent  = "Classifying Intent"
)

// Placeholder strings for envelopes missing the expected payload field. These
// are part of the displayed output and must stay stable.
const (
	noTextContent      = "No 'text' content available."
	noContentAttribute = "No 'content' attribute found."
	noValueContent     = "No 'value' content available."
	noInputTextContent = "No 'input.text' content available."
	invalidResultJSON  = "Invalid JSON format in 'text' attribute."
)

// Classification is the result of matching one envelope against the rule
// table: who did the work, what kind of work it was, and what to show for it.
type Classification struct {
	// Collaborator is the sub-agent the event belongs to. Grouping is keyed
	// by this name.
	Collaborator string
	// Title is the sub-trace title ("Invoking Model", "Rationale", ...).
	// Empty for events that carry content but no recognized category.
	Title string
	// Content is the human-readable extraction for display.
	Content string
	// FullJSON is the complete envelope, pretty-printed, for the raw view.
	FullJSON string
	// IsAside marks informational events that do not count as steps.
	IsAside bool
}

// rule pairs a shape predicate with its extractor. Rules are evaluated in
// order and the first match wins; several envelope shapes satisfy more than
// one predicate, so the ordering is part of the classification contract.
type rule struct {
	name    string
	match   func(s *envelopeShape) bool
	extract func(s *envelopeShape) Classification
}

var rules = []rule{
	{
		name: "routing-classifier collaborator observation",
		match: func(s *envelopeShape) bool {
			return routingTrace(s) != nil && routingTrace(s).Observation != nil &&
				routingTrace(s).Observation.AgentCollaboratorInvocationOutput != nil
		},
		extract: func(s *envelopeShape) Classification {
			out := routingTrace(s).Observation.AgentCollaboratorInvocationOutput
			return Classification{
				Collaborator: nonEmpty(out.AgentCollaboratorName, CollaboratorUnknown),
				Title:        TitleObservation,
				Content:      textOrPlaceholder(out.Output, noTextContent),
			}
		},
	},
	{
		name: "orchestration collaborator observation",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).Observation != nil &&
				orchTrace(s).Observation.AgentCollaboratorInvocationOutput != nil
		},
		extract: func(s *envelopeShape) Classification {
			out := orchTrace(s).Observation.AgentCollaboratorInvocationOutput
			return Classification{
				Collaborator: nonEmpty(out.AgentCollaboratorName, CollaboratorUnknown),
				Title:        TitleObservation,
				Content:      textOrPlaceholder(out.Output, noTextContent),
			}
		},
	},
	{
		name: "orchestration final response",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).Observation != nil &&
				orchTrace(s).Observation.FinalResponse != nil
		},
		extract: func(s *envelopeShape) Classification {
			return Classification{
				Collaborator: nonEmpty(s.CollaboratorName, CollaboratorSupervisor),
				Title:        TitleFinalResponse,
				Content:      textOrPlaceholder(orchTrace(s).Observation.FinalResponse, noTextContent),
			}
		},
	},
	{
		name: "routing-classifier final response",
		match: func(s *envelopeShape) bool {
			return routingTrace(s) != nil && routingTrace(s).Observation != nil &&
				routingTrace(s).Observation.FinalResponse != nil
		},
		extract: func(s *envelopeShape) Classification {
			return Classification{
				Collaborator: nonEmpty(s.CollaboratorName, CollaboratorSupervisor),
				Title:        TitleObservationFinal,
				Content:      textOrPlaceholder(routingTrace(s).Observation.FinalResponse, noTextContent),
			}
		},
	},
	{
		name: "rationale",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).Rationale != nil
		},
		extract: func(s *envelopeShape) Classification {
			return Classification{
				Collaborator: nonEmpty(s.CollaboratorName, CollaboratorSupervisor),
				Title:        TitleRationale,
				Content:      textOrPlaceholder(orchTrace(s).Rationale, noTextContent),
			}
		},
	},
	{
		name: "guardrail",
		match: func(s *envelopeShape) bool {
			return s.Trace.GuardrailTrace != nil
		},
		extract: func(s *envelopeShape) Classification {
			return Classification{
				Collaborator: CollaboratorGuardrails,
				Title:        TitleGuardrailCheck,
				Content:      fmt.Sprintf("Action: %s", nonEmpty(s.Trace.GuardrailTrace.Action, "NONE")),
			}
		},
	},
	{
		name: "model invocation input",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).ModelInvocationInput != nil
		},
		extract: func(s *envelopeShape) Classification {
			content := noTextContent
			if text := orchTrace(s).ModelInvocationInput.Text; text != "" {
				content = reindentJSON(text)
			}
			return Classification{
				Collaborator: nonEmpty(s.CollaboratorName, CollaboratorSupervisor),
				Title:        TitleInvokingModel,
				Content:      content,
			}
		},
	},
	{
		name: "model invocation output",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).ModelInvocationOutput != nil
		},
		extract: func(s *envelopeShape) Classification {
			content := noContentAttribute
			if raw := rawResponseContent(orchTrace(s).ModelInvocationOutput); raw != "" {
				content = reindentJSON(raw)
			}
			return Classification{
				Collaborator: nonEmpty(s.CollaboratorName, CollaboratorSupervisor),
				Title:        TitleInvokingModel,
				Content:      content,
			}
		},
	},
	{
		name: "action group input",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).InvocationInput != nil &&
				orchTrace(s).InvocationInput.ActionGroupInvocationInput != nil
		},
		extract: func(s *envelopeShape) Classification {
			in := orchTrace(s).InvocationInput.ActionGroupInvocationInput
			collaborator := s.CollaboratorName
			if collaborator == "" {
				collaborator = nonEmpty(in.ActionGroupName, CollaboratorActionGroup)
			}
			return Classification{
				Collaborator: collaborator,
				Title:        TitleActionGroupTool,
				Content:      nonEmpty(requestBodyValue(in), noValueContent),
			}
		},
	},
	{
		name: "action group output",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).Observation != nil &&
				orchTrace(s).Observation.ActionGroupInvocationOutput != nil
		},
		extract: func(s *envelopeShape) Classification {
			// Tool output is expected to hold an Athena-style result set.
			return Classification{
				Collaborator: nonEmpty(s.CollaboratorName, CollaboratorActionGroup),
				Content:      flattenResultSet(orchTrace(s).Observation.ActionGroupInvocationOutput.Text),
			}
		},
	},
	{
		name: "routing-classifier agent invocation",
		match: func(s *envelopeShape) bool {
			return routingTrace(s) != nil && routingTrace(s).InvocationInput != nil &&
				routingTrace(s).InvocationInput.AgentCollaboratorInvocationInput != nil
		},
		extract: func(s *envelopeShape) Classification {
			in := routingTrace(s).InvocationInput.AgentCollaboratorInvocationInput
			return Classification{
				Collaborator: CollaboratorRouting,
				Title:        agentInvocationTitle(in.AgentCollaboratorName),
				Content:      textOrPlaceholder(in.Input, noInputTextContent),
			}
		},
	},
	{
		name: "routing-classifier model invocation",
		match: func(s *envelopeShape) bool {
			return routingTrace(s) != nil
		},
		extract: func(s *envelopeShape) Classification {
			rt := routingTrace(s)
			if rt.ModelInvocationOutput != nil {
				content := noContentAttribute
				if raw := rawResponseContent(rt.ModelInvocationOutput); raw != "" {
					content = reindentJSON(raw)
				}
				return Classification{
					Collaborator: CollaboratorRouting,
					Title:        TitleRoutingDecision,
					Content:      content,
				}
			}
			content := noTextContent
			if rt.ModelInvocationInput != nil && rt.ModelInvocationInput.Text != "" {
				content = reindentJSON(rt.ModelInvocationInput.Text)
			}
			return Classification{
				Collaborator: CollaboratorRouting,
				Title:        TitleClassifyingIntent,
				Content:      content,
			}
		},
	},
	{
		name: "knowledge base input",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).InvocationInput != nil &&
				orchTrace(s).InvocationInput.KnowledgeBaseLookupInput != nil
		},
		extract: func(s *envelopeShape) Classification {
			return Classification{
				Collaborator: nonEmpty(s.CollaboratorName, CollaboratorKnowledge),
				Title:        TitleKnowledgeBaseInput,
				Content:      textOrPlaceholder(orchTrace(s).InvocationInput.KnowledgeBaseLookupInput, noTextContent),
			}
		},
	},
	{
		name: "knowledge base output",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).Observation != nil &&
				orchTrace(s).Observation.KnowledgeBaseLookupOutput != nil
		},
		extract: func(s *envelopeShape) Classification {
			return Classification{
				Collaborator: nonEmpty(s.CollaboratorName, CollaboratorKnowledge),
				Title:        TitleKnowledgeBaseReply,
				Content:      joinReferences(orchTrace(s).Observation.KnowledgeBaseLookupOutput),
			}
		},
	},
	{
		name: "orchestration agent invocation",
		match: func(s *envelopeShape) bool {
			return orchTrace(s) != nil && orchTrace(s).InvocationInput != nil &&
				orchTrace(s).InvocationInput.AgentCollaboratorInvocationInput != nil
		},
		extract: func(s *envelopeShape) Classification {
			in := orchTrace(s).InvocationInput.AgentCollaboratorInvocationInput
			return Classification{
				Collaborator: CollaboratorRouting,
				Title:        agentInvocationTitle(in.AgentCollaboratorName),
				Content:      textOrPlaceholder(in.Input, noInputTextContent),
			}
		},
	},
	{
		name: "bare collaborator",
		match: func(s *envelopeShape) bool {
			return s.CollaboratorName != ""
		},
		extract: func(s *envelopeShape) Classification {
			return Classification{Collaborator: s.CollaboratorName}
		},
	},
}

// Classify maps one envelope to a Classification by evaluating the rule table
// in order. It is a pure function and never fails: unrecognized or partially
// missing shapes degrade to placeholder content under UnknownAgent.
func Classify(raw Envelope) Classification {
	if raw == nil {
		raw = Envelope{}
	}
	shape := decodeShape(raw)
	full := prettyJSON(map[string]any(raw))

	for _, r := range rules {
		if !r.match(shape) {
			continue
		}
		c := r.extract(shape)
		c.FullJSON = full
		c.IsAside = isAsideTitle(c.Title)
		return c
	}
	return Classification{Collaborator: CollaboratorUnknown, FullJSON: full}
}

func isAsideTitle(title string) bool {
	switch title {
	case TitleRationale, TitleFinalResponse, TitleObservation, TitleObservationFinal:
		return true
	}
	return false
}

func orchTrace(s *envelopeShape) *agentTraceShape    { return s.Trace.OrchestrationTrace }
func routingTrace(s *envelopeShape) *agentTraceShape { return s.Trace.RoutingClassifierTrace }

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func textOrPlaceholder(t *textShape, placeholder string) string {
	if t != nil && t.Text != "" {
		return t.Text
	}
	return placeholder
}

func rawResponseContent(out *modelOutputShape) string {
	if out == nil || out.RawResponse == nil {
		return ""
	}
	return out.RawResponse.Content
}

// requestBodyValue digs out the first application/json property value from an
// action group request body.
func requestBodyValue(in *actionGroupInputShape) string {
	if in == nil || in.RequestBody == nil {
		return ""
	}
	props := in.RequestBody.Content["application/json"]
	if len(props) == 0 {
		return ""
	}
	return props[0].Value
}

func joinReferences(out *kbOutputShape) string {
	if out == nil || len(out.RetrievedReferences) == 0 {
		return noTextContent
	}
	joined := ""
	for i, ref := range out.RetrievedReferences {
		if i > 0 {
			joined += "\n\n---\n\n"
		}
		joined += ref.Content.Text
	}
	if joined == "" {
		return noTextContent
	}
	return joined
}

func agentInvocationTitle(name string) string {
	return fmt.Sprintf("Agent Invocation - %s", nonEmpty(name, "AgentCollaborator"))
}

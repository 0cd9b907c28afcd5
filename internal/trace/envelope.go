// Package trace classifies and aggregates streamed agent trace envelopes into
// display-ready, step-numbered groups keyed by collaborator.
package trace

import (
	"encoding/json"

	"github.com/go-viper/mapstructure/v2"
)

// Envelope is one streamed trace event from an agent invocation. The shape is
// owned by the remote orchestration service; every nested field is optional
// and unrecognized fields are carried through untouched in FullJSON.
type Envelope map[string]any

// Collaborator names. The routing classifier reports under a sentinel name
// that display code maps to "Routing Classifier".
const (
	CollaboratorSupervisor  = "SupervisorAgent"
	CollaboratorUnknown     = "UnknownAgent"
	CollaboratorGuardrails  = "Guardrails"
	CollaboratorRouting     = "ROUTING_CLASSIFIER"
	CollaboratorActionGroup = "ActionGroup"
	CollaboratorKnowledge   = "KnowledgeBase"
)

// envelopeShape is the typed view of an Envelope used by the classifier rules.
// Decoding is best-effort: fields the envelope lacks stay nil.
type envelopeShape struct {
	CollaboratorName string     `mapstructure:"collaboratorName"`
	Trace            traceShape `mapstructure:"trace"`
}

type traceShape struct {
	OrchestrationTrace     *agentTraceShape `mapstructure:"orchestrationTrace"`
	RoutingClassifierTrace *agentTraceShape `mapstructure:"routingClassifierTrace"`
	GuardrailTrace         *guardrailShape  `mapstructure:"guardrailTrace"`
}

// agentTraceShape covers both orchestration and routing-classifier traces;
// the two differ only in which members the service populates.
type agentTraceShape struct {
	Rationale             *textShape            `mapstructure:"rationale"`
	Observation           *observationShape     `mapstructure:"observation"`
	InvocationInput       *invocationInputShape `mapstructure:"invocationInput"`
	ModelInvocationInput  *textShape            `mapstructure:"modelInvocationInput"`
	ModelInvocationOutput *modelOutputShape     `mapstructure:"modelInvocationOutput"`
}

type observationShape struct {
	AgentCollaboratorInvocationOutput *collaboratorOutputShape `mapstructure:"agentCollaboratorInvocationOutput"`
	FinalResponse                     *textShape               `mapstructure:"finalResponse"`
	ActionGroupInvocationOutput       *textShape               `mapstructure:"actionGroupInvocationOutput"`
	KnowledgeBaseLookupOutput         *kbOutputShape           `mapstructure:"knowledgeBaseLookupOutput"`
}

type invocationInputShape struct {
	ActionGroupInvocationInput       *actionGroupInputShape  `mapstructure:"actionGroupInvocationInput"`
	KnowledgeBaseLookupInput         *textShape              `mapstructure:"knowledgeBaseLookupInput"`
	AgentCollaboratorInvocationInput *collaboratorInputShape `mapstructure:"agentCollaboratorInvocationInput"`
}

type collaboratorOutputShape struct {
	AgentCollaboratorName string     `mapstructure:"agentCollaboratorName"`
	Output                *textShape `mapstructure:"output"`
}

type collaboratorInputShape struct {
	AgentCollaboratorName string     `mapstructure:"agentCollaboratorName"`
	Input                 *textShape `mapstructure:"input"`
}

type actionGroupInputShape struct {
	ActionGroupName string            `mapstructure:"actionGroupName"`
	RequestBody     *requestBodyShape `mapstructure:"requestBody"`
}

type requestBodyShape struct {
	Content map[string][]propertyShape `mapstructure:"content"`
}

type propertyShape struct {
	Value string `mapstructure:"value"`
}

type kbOutputShape struct {
	RetrievedReferences []referenceShape `mapstructure:"retrievedReferences"`
}

type referenceShape struct {
	Content textShape `mapstructure:"content"`
}

type guardrailShape struct {
	Action string `mapstructure:"action"`
}

type modelOutputShape struct {
	RawResponse *rawResponseShape `mapstructure:"rawResponse"`
}

type rawResponseShape struct {
	Content string `mapstructure:"content"`
}

type textShape struct {
	Text string `mapstructure:"text"`
}

func decodeShape(raw Envelope) *envelopeShape {
	var shape envelopeShape
	// Shape mismatches (e.g. a string where an object is expected) leave the
	// affected fields nil, which the rules already treat as absent.
	_ = mapstructure.Decode(map[string]any(raw), &shape)
	return &shape
}

// prettyJSON renders v as indented JSON, or "{}" when marshaling fails.
func prettyJSON(v any) string {
	if v == nil {
		v = map[string]any{}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// reindentJSON pretty-prints s when it holds a JSON document, and returns it
// unchanged otherwise.
func reindentJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return prettyJSON(v)
}

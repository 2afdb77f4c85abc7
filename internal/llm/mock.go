package llm

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// MockClient is a scripted LLM client for tests and offline runs.
// Replies are keyed by "agent/task" first, then by "agent". Queued replies
// are consumed in order; once a queue is empty the default for the key is used.
type MockClient struct {
	mu       sync.Mutex
	replies  map[string][]string
	errors   map[string][]error
	defaults map[string]string

	// Usage is reported on every reply through UsageMetadata.
	Usage domain.TokenUsage
	// Model is echoed back on every reply.
	Model string

	// Call tracking for assertions
	Calls []domain.LLMRequest
}

// NewMockClient returns a client whose defaults keep every agent on its safe
// path: the orchestrator explores, observers extract nothing.
func NewMockClient() *MockClient {
	return &MockClient{
		replies:  map[string][]string{},
		errors:   map[string][]error{},
		defaults: defaultMockReplies(),
		Usage:    domain.TokenUsage{Input: 100, Output: 50},
		Model:    "mock",
	}
}

func mockKey(agent, task string) string {
	if task == "" {
		return agent
	}
	return agent + "/" + task
}

// Enqueue scripts replies for agent (optionally "agent/task").
func (c *MockClient) Enqueue(key string, replies ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[key] = append(c.replies[key], replies...)
}

// SetDefault sets the reply returned when key has nothing queued.
func (c *MockClient) SetDefault(key, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults[key] = reply
}

// FailNext makes the next calls for key return errs, one per call.
func (c *MockClient) FailNext(key string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[key] = append(c.errors[key], errs...)
}

func (c *MockClient) Invoke(ctx context.Context, req domain.LLMRequest) (*domain.LLMResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := []string{mockKey(req.Agent, req.Task), req.Agent}
	for _, k := range keys {
		if q := c.errors[k]; len(q) > 0 {
			c.errors[k] = q[1:]
			return nil, q[0]
		}
	}

	content, found := "", false
	for _, k := range keys {
		if q := c.replies[k]; len(q) > 0 {
			content, c.replies[k] = q[0], q[1:]
			found = true
			break
		}
	}
	if !found {
		for _, k := range keys {
			if d, ok := c.defaults[k]; ok {
				content, found = d, true
				break
			}
		}
	}
	if !found {
		content = "{}"
	}

	usage := c.Usage
	return &domain.LLMResponse{
		Content:       content,
		Model:         c.Model,
		UsageMetadata: &usage,
	}, nil
}

// CallsFor returns recorded calls for agent, or for "agent/task" keys.
func (c *MockClient) CallsFor(key string) []domain.LLMRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.LLMRequest
	for _, r := range c.Calls {
		if r.Agent == key || mockKey(r.Agent, r.Task) == key {
			out = append(out, r)
		}
	}
	return out
}

func (c *MockClient) CallCount(key string) int {
	return len(c.CallsFor(key))
}

func defaultMockReplies() map[string]string {
	return map[string]string{
		domain.AgentOrchestrator: `{"reasoning":"mock","next_step":"explore","message":"Interesting. What made you notice this?",` +
			`"agent_suggestion":null,"focal_argument":{},"reflection_prompt":"What would change your mind?"}`,
		domain.AgentStructurer: `{"structured_question":"How does X affect Y?",` +
			`"elements":{"context":"mock context","problem":"mock problem","contribution":"mock contribution"},"addressed_gaps":[]}`,
		domain.AgentMethodologist: `{"status":"approved","justification":"mock","improvements":[],"clarifications":{},` +
			`"needs_clarification":false,"question":""}`,
		mockKey(domain.AgentObserver, TaskExtract):     `{"claims":[],"concepts":[],"proposicoes":[],"contradictions":[],"open_questions":[]}`,
		mockKey(domain.AgentObserver, TaskFundamentos): `{"ratings":[]}`,
		mockKey(domain.AgentObserver, TaskVariation): `{"classification":"variation","essence_previous":"","essence_new":"",` +
			`"shared_concepts":[],"new_concepts":[],"analysis":""}`,
		mockKey(domain.AgentObserver, TaskClarity): `{"clarity_level":"clara","clarity_score":4,"description":"",` +
			`"needs_checkpoint":false,"factors":{"claim_definition":"","coherence":"","direction_stability":""},"suggestion":null}`,
		mockKey(domain.AgentObserver, TaskClarificationNeed): `{"needs_clarification":false}`,
		mockKey(domain.AgentObserver, TaskClarificationResponse): `{"resolution_status":"unresolved","summary":"",` +
			`"updates":{},"needs_followup":false,"followup_suggestion":null}`,
		mockKey(domain.AgentObserver, TaskInsight): `{"insight":"","suggestion":null,"confidence":0,"evidence":[]}`,
	}
}

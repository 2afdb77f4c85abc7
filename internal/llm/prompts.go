package llm

// Task names carried on domain.LLMRequest.Task. The mock client and the
// structured log key replies by agent and task.
const (
	TaskDecide                = "decide"
	TaskStructure             = "structure"
	TaskRefine                = "refine"
	TaskEvaluate              = "evaluate"
	TaskAnalyze               = "analyze"
	TaskExtract               = "extract"
	TaskFundamentos           = "fundamentos"
	TaskVariation             = "variation"
	TaskClarity               = "clarity"
	TaskClarificationNeed     = "clarification_need"
	TaskClarificationResponse = "clarification_response"
	TaskInsight               = "insight"
)

const OrchestratorPrompt = `Conversation so far:
%s
Latest user message: %s

Current focal argument (JSON): %s

Analytical notes from the silent observer (advisory only):
%s

Refinement status:
%s

Registered specialists: %s

Decide the next conversational move. Respond ONLY with JSON, no markdown:
{"reasoning":"private analysis, never shown",
 "next_step":"explore|clarify|suggest_agent",
 "message":"what you say to the user, ending with an open question when exploring",
 "agent_suggestion":{"agent":"structurer|methodologist","justification":"why now"} or null,
 "focal_argument":{"intent":"","subject":"","population":"","metrics":""},
 "reflection_prompt":"a short question inviting the user to reflect" or null}

Rules:
- agent_suggestion must be null unless next_step is suggest_agent.
- focal_argument must accumulate what was learned in earlier turns; never drop known fields.`

const StructurerInitialPrompt = `Focal argument (JSON): %s
Latest user message: %s

Produce the first structured research question. Respond ONLY with JSON, no markdown:
{"structured_question":"...",
 "elements":{"context":"...","problem":"...","contribution":"..."}}`

const StructurerRefinePrompt = `Previous structured question (version %d):
%s

The methodologist found these gaps (numbered):
%s

Focal argument (JSON): %s

Write a refined question that addresses EVERY gap and differs from the previous one.
Respond ONLY with JSON, no markdown:
{"structured_question":"...",
 "elements":{"context":"...","problem":"...","contribution":"..."},
 "addressed_gaps":["1","2"]}`

const MethodologistEvaluatePrompt = `Structured research question (version %d):
%s

Elements:
- context: %s
- problem: %s
- contribution: %s

Evaluate testability, falsifiability, specificity and operationalization.
Prefer needs_refinement over rejected whenever there is any empirical footing.
Respond ONLY with JSON, no markdown:
{"status":"approved|needs_refinement|rejected",
 "justification":"...",
 "improvements":[{"aspect":"testability|falsifiability|specificity|operationalization","gap":"...","suggestion":"..."}],
 "clarifications":{}}`

const MethodologistAnalyzePrompt = `Hypothesis under review:
%s

Answers gathered so far:
%s

Decide whether you need to ask the researcher something before you can judge.
Respond ONLY with JSON, no markdown:
{"needs_clarification":true|false,
 "question":"the single question to ask, or empty",
 "status":"approved|needs_refinement|rejected",
 "justification":"...",
 "improvements":[{"aspect":"...","gap":"...","suggestion":"..."}]}`

const ObserverExtractPrompt = `Recent dialogue (oldest first):
%s
Latest user message: %s

Extract, without inventing anything:
- claims: up to 3 central propositions the user defends
- concepts: up to 5 reusable concept labels (short noun phrases)
- proposicoes: up to 3 supporting statements
- contradictions: only those you are at least 80%% confident about
- open_questions: up to 3 questions the argument leaves unresolved

Respond ONLY with JSON, no markdown:
{"claims":[],"concepts":[],"proposicoes":[{"texto":"","solidez":null}],
 "contradictions":[{"description":"","confidence":0.0,"suggested_resolution":null}],
 "open_questions":[]}`

const ObserverFundamentosPrompt = `Claim: %s

Rate how well grounded each supporting proposition is, from 0.0 (unsupported)
to 1.0 (well established), given the dialogue:
%s

Propositions:
%s

Respond ONLY with JSON, no markdown:
{"ratings":[{"id":"...","solidez":0.0}]}`

const ObserverVariationPrompt = `Previous claim: %s
New claim: %s
Recent dialogue:
%s

Is the new claim a rephrasing of the same essence (variation) or a shift to a
different essence (real_change)? When unsure, answer variation.
Respond ONLY with JSON, no markdown:
{"classification":"variation|real_change","essence_previous":"","essence_new":"",
 "shared_concepts":[],"new_concepts":[],"analysis":""}`

const ObserverClarityPrompt = `Cognitive model:
%s
Recent dialogue:
%s

Rate how clear the user's argument is right now.
Levels: cristalina (5), clara (4), nebulosa (3 or 2), confusa (1).
Respond ONLY with JSON, no markdown:
{"clarity_level":"cristalina|clara|nebulosa|confusa","clarity_score":4,"description":"",
 "needs_checkpoint":false,
 "factors":{"claim_definition":"","coherence":"","direction_stability":""},
 "suggestion":null}`

const ObserverClarificationNeedPrompt = `Cognitive model:
%s
Recent dialogue:
%s
Current turn: %d

Does the argument need a clarification from the user? Consider contradictions,
gaps, confusion and direction changes.
Respond ONLY with JSON, no markdown:
{"needs_clarification":false,"clarification_type":"contradiction|gap|confusion|direction_change",
 "description":"","relevant_context":"","suggested_approach":"","priority":"high|medium|low"}`

const ObserverClarificationResponsePrompt = `We asked the user to clarify:
%s

The user answered:
%s

Cognitive model before the answer:
%s

Judge whether the answer resolves the issue and list the updates it implies.
Respond ONLY with JSON, no markdown:
{"resolution_status":"resolved|partially_resolved|unresolved","summary":"",
 "updates":{"proposicoes_to_add":[{"texto":"","solidez":null}],
            "proposicoes_to_update":[{"id":"","solidez":0.0}],
            "contradictions_to_resolve":[],"open_questions_to_close":[],"context_to_add":[]},
 "needs_followup":false,"followup_suggestion":null}`

const ObserverInsightPrompt = `Cognitive model:
%s
Metrics: solidez %.2f, completude %.2f

Context from the orchestrator: %s
Question: %s

Answer as an observer: describe what you see, never what anyone must do.
Respond ONLY with JSON, no markdown:
{"insight":"","suggestion":null,"confidence":0.0,"evidence":[]}`

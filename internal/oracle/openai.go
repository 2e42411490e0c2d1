package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mockmate/mockmate/internal/domain"
)

// Default models. Generation and grading use the same chat model; narration
// uses the speech endpoint.
const (
	defaultChatModel = openai.GPT4oMini

	generationMaxTokens = 1000
	gradingMaxTokens    = 800
)

// OpenAIClient implements QuestionGenerator, GradingOracle, and
// NarrationService against the OpenAI API. One client instance serves all
// three roles; each method is a single stateless call.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// OpenAIConfig configures the OpenAI-backed collaborators.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible endpoints
	Model   string // optional, defaults to defaultChatModel
}

// NewOpenAIClient creates an OpenAI-backed collaborator client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultChatModel
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: slog.Default().With("component", "oracle"),
	}, nil
}

// Generate produces an ordered question list from the background materials.
// The model is asked for a JSON array of strings; anything that does not
// decode to a non-empty array is a generation failure (saga-fatal, per the
// provisioning contract).
func (c *OpenAIClient) Generate(
	ctx context.Context,
	materials domain.BackgroundMaterials,
) ([]string, error) {
	system := fmt.Sprintf(
		"You are an expert interview coach. Generate exactly %d relevant interview "+
			"questions based on the job description and candidate's resume. The questions "+
			"should be challenging but fair, covering technical skills, behavioral aspects, "+
			"and role-specific scenarios. Return only a JSON array of %d questions as strings.",
		materials.NumQuestions, materials.NumQuestions)

	user := fmt.Sprintf("Job Description:\n%s\n\nResume:\n%s\n\nGenerate %d interview questions for this role and candidate.",
		materials.JobDescription, materials.Resume, materials.NumQuestions)

	content, err := c.complete(ctx, system, user, generationMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	var questions []string
	payload := ExtractJSON(content)
	if payload == nil {
		return nil, fmt.Errorf("%w: non-JSON completion", ErrGenerationUnavailable)
	}
	if err := json.Unmarshal(payload, &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: empty question array", ErrGenerationUnavailable)
	}

	return questions, nil
}

// Grade asks the oracle for a structured verdict on one question/response
// pair. The raw payload is returned as-is after JSON extraction; the caller
// owns shape validation and malformed-payload tolerance. A completion that
// contains no JSON at all is still returned (as the raw text) so the caller
// counts it as a malformed attempt rather than a transport failure.
func (c *OpenAIClient) Grade(
	ctx context.Context,
	question, response string,
	background domain.BackgroundMaterials,
) (json.RawMessage, error) {
	system := "You are an expert interview coach and hiring manager. Analyze a single " +
		"interview question and the candidate's response."

	var b strings.Builder
	fmt.Fprintf(&b, "Job Description:\n%s\n\n", orNA(background.JobDescription))
	fmt.Fprintf(&b, "Candidate Resume:\n%s\n\n", orNA(background.Resume))
	fmt.Fprintf(&b, "Question:\n%s\n\n", question)
	fmt.Fprintf(&b, "Candidate Response:\n%s\n\n", response)
	b.WriteString(`For this single question, return ONLY valid JSON and nothing else, with the exact shape:
{
  "question": "....",
  "response": "....",
  "grade": "A|B|C|D|F",
  "summary": "one- or two-sentence summary",
  "pros": ["...","..."],
  "cons": ["...","..."]
}

Keep summary concise (1-2 sentences). Provide 2 pros and 2 cons if reasonable.`)

	content, err := c.complete(ctx, system, b.String(), gradingMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGradingUnavailable, err)
	}

	if payload := ExtractJSON(content); payload != nil {
		return payload, nil
	}

	c.logger.Warn("grading completion contained no JSON", "sample", domain.Snippet(content))
	return json.RawMessage(content), nil
}

// Synthesize produces narration audio for the question text and returns it
// as a data URI, the reference format the interview player consumes.
func (c *OpenAIClient) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty narration text", ErrNarrationUnavailable)
	}

	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.VoiceAlloy,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNarrationUnavailable, err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNarrationUnavailable, err)
	}

	return "data:audio/mp3;base64," + base64.StdEncoding.EncodeToString(audio), nil
}

// complete runs one chat completion and returns the first choice's content.
func (c *OpenAIClient) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
